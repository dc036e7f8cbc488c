// Package agents implements the agent registry: globally unique names,
// heartbeat tracking via last_seen, and a small status enum other components
// use for reference validation.
package agents
