package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// --------------------------------------------------------------------------
// Reserved protocol tokens
// --------------------------------------------------------------------------

var (
	// TokenPing asks the peer for an immediate TokenPong
	TokenPing = []byte("PING")
	// TokenPong answers a TokenPing
	TokenPong = []byte("PONG")
	// TokenShutdown closes the connection on which it is received, without reply
	TokenShutdown = []byte("SHUTDOWN")
)

// IsToken reports whether payload equals the given reserved token
func IsToken(payload, token []byte) bool {
	return bytes.Equal(payload, token)
}

// --------------------------------------------------------------------------
// Reserved routes
// --------------------------------------------------------------------------

const (
	// RouteKey is the key under which the route name travels in a request mapping
	RouteKey = "route"

	RouteMembers = "members"
	RouteMissing = "missing"
)

// --------------------------------------------------------------------------
// Response
// --------------------------------------------------------------------------

// ResponseKind distinguishes the outcome of a call
type ResponseKind int

const (
	// ResponseUnavailable means no cluster member could be reached (zero value)
	ResponseUnavailable ResponseKind = iota
	// ResponseOK means a frame was received and decoded
	ResponseOK
	// ResponseDecodeFailure means a frame was received but could not be decoded, Value holds the raw bytes
	ResponseDecodeFailure
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseUnavailable:
		return "unavailable"
	case ResponseOK:
		return "ok"
	case ResponseDecodeFailure:
		return "decode failure"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// Response is the result of one request/response exchange.
// Value holds nil, bool, float64, string, []any, map[string]any or []byte.
type Response struct {
	Kind  ResponseKind
	Value any
	// Err is the last fault seen before a call gave up, it is informational only
	Err error
}

// Unavailable returns the response used when no member could serve a call
func Unavailable(cause error) Response {
	return Response{Kind: ResponseUnavailable, Err: cause}
}

// Available reports whether any member answered
func (r Response) Available() bool {
	return r.Kind != ResponseUnavailable
}

// OK reports whether a member answered with a decodable payload
func (r Response) OK() bool {
	return r.Kind == ResponseOK
}

// IsNone reports whether the member answered with the null literal
func (r Response) IsNone() bool {
	return r.Kind == ResponseOK && r.Value == nil
}

// Map returns the value as a mapping
func (r Response) Map() (map[string]any, bool) {
	m, ok := r.Value.(map[string]any)
	return m, ok
}

// Bytes returns the raw bytes of a byte response or a decode failure
func (r Response) Bytes() ([]byte, bool) {
	b, ok := r.Value.([]byte)
	return b, ok
}

// Truthy reports whether the response carries a non-empty value
func (r Response) Truthy() bool {
	if !r.Available() {
		return false
	}
	switch v := r.Value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []byte:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func (r Response) String() string {
	switch v := r.Value.(type) {
	case []byte:
		return fmt.Sprintf("%s: %q", r.Kind, v)
	case nil:
		return fmt.Sprintf("%s: None", r.Kind)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%s: %v", r.Kind, v)
		}
		return fmt.Sprintf("%s: %s", r.Kind, b)
	}
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

// Member is one entry of a members response
type Member struct {
	ID   string `mapstructure:"-" json:"-"`
	Addr string `mapstructure:"addr" json:"addr,omitempty"`
	// Address is accepted as an alias of Addr
	Address string `mapstructure:"address" json:"address,omitempty"`
	Port    int    `mapstructure:"port" json:"port"`
}

// Host returns the advertised host
func (m Member) Host() string {
	if m.Addr != "" {
		return m.Addr
	}
	return m.Address
}

// ToAddress converts the member into an Address
func (m Member) ToAddress() Address {
	return Address{Host: m.Host(), Port: m.Port}
}

// Kwargs returns the member as keyword arguments (used for the missing route)
func (m Member) Kwargs() map[string]any {
	return map[string]any{
		"addr": m.Host(),
		"port": m.Port,
	}
}

// DecodeMembers converts a members response value (id -> {addr, port}) into a list
// of members sorted by id. Entries without host or port are skipped.
func DecodeMembers(value any) ([]Member, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("members response is %T, expected a mapping", value)
	}

	members := make([]Member, 0, len(raw))
	for id, entry := range raw {
		var m Member
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &m,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(entry); err != nil {
			return nil, fmt.Errorf("invalid member %s: %w", id, err)
		}
		if m.Host() == "" || m.Port <= 0 {
			continue
		}
		m.ID = id
		members = append(members, m)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}
