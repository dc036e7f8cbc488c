// Package lifecycle provides the guarded state-machine table used by the
// execution, handoff and escalation records. Each package declares its legal
// transitions once; stores derive compare-and-swap conditions from the same
// table so concurrent writers cannot bypass the guard.
package lifecycle
