// Package api implements the HTTP REST API and WebSocket server for the DLMS parser.
//
// This package provides:
//   - REST endpoints to parse, batch-parse, validate and classify hex frames
//   - Parse history browsing, deletion and export
//   - WebSocket hub broadcasting every decode as it happens
//   - Optional JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// Every decode goes through the pipeline, which records history, writes
// decode metrics and broadcasts a dlms.decoded or dlms.error event to
// WebSocket subscribers. Frames arriving over MQTT use the same pipeline,
// so the live feed shows both sources.
//
// # Security
//
// Authentication is off by default. When security.auth.enabled is set, every
// route except health, login and metrics requires a Bearer token issued by
// POST /auth/login. WebSocket connections then use single-use tickets so the
// token never appears in a URL.
//
// # Graceful Degradation
//
// The server operates without MQTT, InfluxDB or history. Missing history
// turns the history endpoints into 503 responses; parsing keeps working.
package api
