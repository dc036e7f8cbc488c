// Package workflow manages versioned workflow definitions. Definition bodies
// are opaque text; versions of a name are immutable once written and new
// versions auto-increment. A built-in template catalog ships embedded in the
// binary.
package workflow
