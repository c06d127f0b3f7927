// Package telemetry sets up structured logging and tracing.
//
// By default logs go to a text handler and tracing is a no-op. With
// Config.Export, records flow through the OpenTelemetry slog bridge and
// spans through the SDK tracer provider, both to stdout exporters.
package telemetry
