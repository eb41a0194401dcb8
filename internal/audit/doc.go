// Package audit records handled request errors to an append-only trail.
//
// A Logger receives entries from the error handler, enriches them with
// the request's correlation data, redacts sensitive detail keys and fans
// the resulting Event out to its sinks:
//   - a writer sink emitting one JSON object per line
//   - a datastore sink persisting rows idempotently
//
// Writes are throttled by a token bucket. Events over the budget are
// dropped and counted; recording never blocks the request.
//
//	logger, err := audit.NewLogger(audit.DefaultConfig(),
//	    audit.WithSink(audit.NewDatastoreSink(db)),
//	)
//	handler := apierr.NewHandler(apierr.WithAuditor(logger))
package audit
