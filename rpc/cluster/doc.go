// Package cluster keeps track of the members of the service cluster a client talks to.
//
// A Server pairs a member address with its connection pool (see base.Pool) and a
// last known liveness flag. Its Probe is a plain dial-and-close and does not touch
// the pooled connections.
//
// A Cluster is the ordered set of servers without duplicate addresses:
//
//   - Add builds the pool of a new address and keeps the server only if it answers
//     its probe. Adding a known address is a no-op.
//   - Remove drops a server by identity or address and closes its pool.
//   - Next hands out servers round-robin.
//   - Prune probes all servers in parallel and drops the dead ones.
//
// Membership changes are guarded by the cluster's own locks and never by the
// i/o lock shared by the connections.
package cluster
