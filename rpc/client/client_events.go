package client

import (
	"context"
	"slices"

	"github.com/relock/sentinel/rpc/common"
)

// Notify sends an event with arbitrary key/value pairs
func (d *Dispatcher) Notify(ctx context.Context, kwargs map[string]any) common.Response {
	return d.Call(ctx, "notify", kwargs)
}

// Expose registers the url as unprotected route, locally and on the cluster.
// The local registration happens even if the cluster is unavailable.
func (d *Dispatcher) Expose(ctx context.Context, url string) common.Response {
	d.exposedMu.Lock()
	if !slices.Contains(d.exposed, url) {
		d.exposed = append(d.exposed, url)
	}
	d.exposedMu.Unlock()

	return d.Call(ctx, "expose", map[string]any{"url": url})
}

// Exposed reports whether the url was registered with Expose
func (d *Dispatcher) Exposed(url string) bool {
	d.exposedMu.Lock()
	defer d.exposedMu.Unlock()
	return slices.Contains(d.exposed, url)
}
