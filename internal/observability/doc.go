// Package observability provides logging, metrics and tracing for function
// invocations.
//
// Logging goes through the Logger interface backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.WithContext(ctx).Info("function completed",
//	    observability.String("function", "ping"),
//	    observability.Int("status", 200),
//	)
//
// Metrics live in a per-process Prometheus registry; Handler serves it
// together with the default gatherer. Tracing uses the OpenTelemetry SDK
// and exports over OTLP gRPC when an endpoint is configured.
package observability
