package client

import (
	"context"

	"github.com/relock/sentinel/rpc/common"
	"github.com/spf13/cast"
)

// --------------------------------------------------------------------------
// Key/value routes
// --------------------------------------------------------------------------

func (d *Dispatcher) Get(ctx context.Context, key string) common.Response {
	return d.Call(ctx, "get", map[string]any{"key": key})
}

func (d *Dispatcher) Set(ctx context.Context, key string, value any) common.Response {
	return d.Call(ctx, "set", map[string]any{"key": key, "value": value})
}

func (d *Dispatcher) Delete(ctx context.Context, key string) common.Response {
	return d.Call(ctx, "delete", map[string]any{"key": key})
}

// Exists reports whether the key exists, an unavailable cluster reports false
func (d *Dispatcher) Exists(ctx context.Context, key string) bool {
	resp := d.Call(ctx, "exists", map[string]any{"key": key})
	if !resp.OK() {
		return false
	}
	return cast.ToBool(resp.Value)
}

// Keys returns the keys matching the pattern
func (d *Dispatcher) Keys(ctx context.Context, pattern string) ([]string, bool) {
	return toStrings(d.Call(ctx, "keys", map[string]any{"key": pattern}))
}

// TTL asks for the remaining time to live of the key
func (d *Dispatcher) TTL(ctx context.Context, key string, value int64) (int64, bool) {
	resp := d.Call(ctx, "ttl", map[string]any{"key": key, "value": value})
	if !resp.OK() || resp.Value == nil {
		return 0, false
	}
	ttl, err := cast.ToInt64E(resp.Value)
	if err != nil {
		Logger.Debugf("Unexpected ttl response %s: %v", resp, err)
		return 0, false
	}
	return ttl, true
}

func (d *Dispatcher) Expire(ctx context.Context, key string, seconds int64) common.Response {
	return d.Call(ctx, "expire", map[string]any{"key": key, "value": seconds})
}

// --------------------------------------------------------------------------
// Sorted set routes
// --------------------------------------------------------------------------

// ZAdd adds the members (name -> value) with the score to the sorted set
func (d *Dispatcher) ZAdd(ctx context.Context, key string, score int64, members map[string]any) common.Response {
	return d.Call(ctx, "zadd", map[string]any{"key": key, "score": score, "value": members})
}

// ZRange returns the range [x, y] of the sorted set, -1 is the last element
func (d *Dispatcher) ZRange(ctx context.Context, key string, x, y int64) common.Response {
	return d.Call(ctx, "zrange", map[string]any{"key": key, "x": x, "y": y})
}

// ZRevRange returns the range [x, y] of the sorted set in reverse order
func (d *Dispatcher) ZRevRange(ctx context.Context, key string, x, y int64) common.Response {
	return d.Call(ctx, "zrevrange", map[string]any{"key": key, "x": x, "y": y})
}

func (d *Dispatcher) ZRem(ctx context.Context, key string, value any) common.Response {
	return d.Call(ctx, "zrem", map[string]any{"key": key, "value": value})
}

// --------------------------------------------------------------------------
// Set routes
// --------------------------------------------------------------------------

func (d *Dispatcher) SAdd(ctx context.Context, key string, kwargs map[string]any) common.Response {
	return d.Call(ctx, "sadd", withKey(key, kwargs))
}

func (d *Dispatcher) SRem(ctx context.Context, key string, kwargs map[string]any) common.Response {
	return d.Call(ctx, "srem", withKey(key, kwargs))
}

func (d *Dispatcher) SMembers(ctx context.Context, key string) ([]string, bool) {
	return toStrings(d.Call(ctx, "smembers", map[string]any{"key": key}))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// withKey returns a copy of kwargs with the key set
func withKey(key string, kwargs map[string]any) map[string]any {
	merged := make(map[string]any, len(kwargs)+1)
	for k, v := range kwargs {
		merged[k] = v
	}
	merged["key"] = key
	return merged
}

// toStrings converts a list response into strings
func toStrings(resp common.Response) ([]string, bool) {
	if !resp.OK() || resp.Value == nil {
		return nil, false
	}
	values, err := cast.ToStringSliceE(resp.Value)
	if err != nil {
		Logger.Debugf("Unexpected list response %s: %v", resp, err)
		return nil, false
	}
	return values, true
}
