// Package logging builds the slog logger shared by the API, the MQTT
// ingest bridge and the CLI.
//
// Every record carries service and version attributes. The logging
// section selects level (debug|info|warn|error), format (json|text) and
// output (stdout|stderr|discard).
//
// Raw frames can contain AARQ authentication values, so they are only
// logged at debug level.
package logging
