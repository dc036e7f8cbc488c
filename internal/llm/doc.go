// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs behind a single Interpret contract
// that returns normalized data with per-field confidence scores.
package llm
