// Package execution tracks workflow execution records through the
// pending/running/completed/failed lifecycle. Durations are computed
// server-side from the stored start time and freeze at terminal states.
package execution
