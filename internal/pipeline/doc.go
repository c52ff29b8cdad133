// Package pipeline runs decodes for every entry point of the service.
//
// The HTTP API, the MQTT ingest bridge and the CLI all decode through a
// Pipeline so that each decode is treated the same way:
//
//  1. The frame (or batch) is decoded by the dlms parser
//  2. The outcome is recorded in parse history (when enabled)
//  3. A decode metric is written to InfluxDB (when enabled)
//  4. The result is broadcast on the dlms.decoded or dlms.error
//     WebSocket channel (when a hub is attached)
//
// History, metrics and broadcast failures never fail the decode itself;
// they are logged and the decoded messages are still returned.
package pipeline
