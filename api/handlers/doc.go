// Package handlers implements the HTTP surface: the telephony media-stream
// WebSocket endpoint, health and readiness probes, and the admin call API.
package handlers
