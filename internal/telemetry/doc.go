// Package telemetry wraps OpenTelemetry SDK setup for traces and metrics.
package telemetry
