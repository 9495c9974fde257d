// Package transport defines the interfaces and abstractions for the server side
// of the cluster wire protocol. The client side (connections, pools) lives in
// the base package, since the cluster and client packages use it directly.
//
// Key Components:
//
//   - IRPCServerTransport: Interface for server-side transport implementations
//     that receive frames and pass them to a handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
