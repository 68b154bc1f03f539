// Package cache provides a redis-backed cache for patient-context lookups.
// This package is internal and should not be imported by external projects.
package cache
