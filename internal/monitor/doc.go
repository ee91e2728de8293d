// Package monitor serves a read-only HTTP view of a running collaboration:
// health, the controller status, Prometheus metrics and a server-sent event
// stream of phase changes and agent output.
package monitor
