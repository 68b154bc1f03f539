// Package pipeline is the client for the external cognitive pipeline
// service. The bridge never talks to storage directly; conversation saves,
// patient context, content search, medication logging, and alerts all go
// through this service.
package pipeline
