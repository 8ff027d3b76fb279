// Package observability provides structured logging and OpenTelemetry
// tracing for the pipeline and its operator HTTP surface. Generic HTTP
// Prometheus metrics live in internal/handler/http instead, next to the
// middleware chain that records them.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - tracing: OpenTelemetry tracing middleware and tracer accessor
//
// Example usage:
//
//	import "catchup-feed/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//	}
package observability
