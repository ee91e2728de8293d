// Package engine drives a planner/reviewer collaboration through its phases.
// The Controller owns the workflow state, persists every change through a
// crash-safe Repository before anyone can observe it, and streams agent
// output to registered listeners while accumulating the full reply.
package engine
