// Package sentiment provides the client for the external sentiment-scoring
// service. Scoring is best-effort: callers treat every failure here as
// transient and never let it affect call continuity.
package sentiment
