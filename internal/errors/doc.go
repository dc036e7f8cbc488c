// Package errors defines the unified error type shared by every component of
// the control plane. Errors carry a stable machine-readable code plus
// attributes (severity, retryability, alerting) resolved through a registry,
// so transports and operators can react without string matching.
package errors
