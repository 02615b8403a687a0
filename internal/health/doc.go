// Package health holds the liveness and readiness probes of both
// listeners and their HTTP handlers.
//
// [All] combines probes, [Fixed] is a constant and [Ping] bounds a
// backend ping with a timeout. [ShutdownGate] fails readiness as soon as
// draining starts, so load balancers stop routing before in-flight swaps
// finish.
package health
