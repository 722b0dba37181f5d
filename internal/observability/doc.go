// Package observability provides structured logging, metrics, and tracing
// for the maternal assistant API.
//
// This package implements:
//   - zap loggers configured from LOG_LEVEL and LOG_FORMAT, with request scoped
//     loggers carried on the context
//   - Prometheus collectors for HTTP traffic, assistant operations, and
//     provider attempts (Metrics satisfies routing.Observer)
//   - OpenTelemetry tracing exported over OTLP/gRPC
package observability
