package server

import (
	"path"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cast"
)

// RegisterMemoryStore registers in-memory handlers for the key/value routes
// (get, set, delete, exists, keys). Values are kept as decoded from the request.
func (s *RPCServer) RegisterMemoryStore() {
	store := xsync.NewMapOf[string, any]()

	s.Handle("get", func(req map[string]any) any {
		value, _ := store.Load(cast.ToString(req["key"]))
		return value
	})

	s.Handle("set", func(req map[string]any) any {
		store.Store(cast.ToString(req["key"]), req["value"])
		return true
	})

	s.Handle("delete", func(req map[string]any) any {
		_, loaded := store.LoadAndDelete(cast.ToString(req["key"]))
		return loaded
	})

	s.Handle("exists", func(req map[string]any) any {
		_, ok := store.Load(cast.ToString(req["key"]))
		return ok
	})

	// keys matches with shell patterns, an empty pattern matches everything
	s.Handle("keys", func(req map[string]any) any {
		pattern := cast.ToString(req["key"])
		keys := make([]string, 0)
		store.Range(func(key string, _ any) bool {
			if pattern == "" {
				keys = append(keys, key)
			} else if ok, _ := path.Match(pattern, key); ok {
				keys = append(keys, key)
			}
			return true
		})
		sort.Strings(keys)
		return keys
	})
}
