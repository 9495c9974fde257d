// Package client implements the dispatcher, the entry point for talking to the
// service cluster. A Dispatcher owns a cluster.Cluster and sends every call to
// the next member in round-robin order.
//
// The package focuses on:
//   - Transparent failover: transport faults remove the failing member and the
//     call is retried on another one, up to RetryCount attempts
//   - Membership discovery through the members route and reporting of
//     unreachable members through the missing route
//   - Rebuilding the cluster from the static endpoints with exponential
//     backoff when no member is left
//
// Calls never return transport errors. The result is a common.Response whose
// Kind tells apart a decoded value (OK), a payload that could not be decoded
// (DecodeFailure) and a cluster that could not be reached (Unavailable).
//
// Usage Example:
//
//	config := common.ClientConfig{
//		Transport: common.ClientTransportConfig{
//			Endpoints: []string{"10.0.0.1:8111", "10.0.0.2:8111"},
//			PoolSize:  4,
//		},
//	}
//
//	d, err := client.NewTCPDispatcher(config)
//	if err != nil {
//		panic(err)
//	}
//	defer d.Close()
//
//	resp := d.Call(ctx, "set", map[string]any{"key": "user", "value": "alice"})
//	if !resp.Available() {
//		// no member could be reached
//	}
//	value := d.Get(ctx, "user")
//
// Thread Safety:
//
//	A Dispatcher is safe for concurrent use. Refreshes are serialized, calls
//	run in parallel and only share the cluster index and the pools.
package client
