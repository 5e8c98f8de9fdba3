// Package httpclient builds the pooled HTTP clients used by trials.
//
// Each trial gets a fresh client sized for its concurrency level: the
// pool capacity covers every long-lived hold connection plus headroom
// for the sequential probe stream. HTTP/2 is disabled so one in-flight
// request always occupies one connection, which makes the pool capacity
// a real concurrency bound rather than a soft hint.
//
//	client := httpclient.NewClient(level + headroom)
//	defer client.CloseIdleConnections()
//
// Per-request timeouts are the caller's job (probes and holds differ),
// so the client itself carries no global timeout.
package httpclient
