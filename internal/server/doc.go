// Package server manages the HTTP server lifecycle: non-blocking start,
// graceful shutdown, and signal handling. It is internal infrastructure;
// handlers live in api/handlers.
package server
