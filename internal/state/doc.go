// Package state implements the shared component state store: last-writer-wins
// entries keyed by (component_name, state_key) with optional TTL, backed by
// memory, MySQL or Redis. Reads never return expired entries regardless of
// backend.
package state
