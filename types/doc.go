// Package types defines shared types used across the callbridge modules:
// the structured error model and the transcript data model.
package types
