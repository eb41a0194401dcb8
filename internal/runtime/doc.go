// Package runtime wraps function handlers with the shared request
// pipeline.
//
// Every invocation passes through the same fixed sequence:
//
//  1. CORS preflight short-circuit
//  2. caller identity resolution
//  3. datastore scoping to the caller
//  4. inbound request logging
//  5. rate limiting for non-service callers
//  6. the function handler
//
// Errors and panics raised after identity resolution are converted into
// the JSON error envelope by a single boundary. Every response carries
// the CORS headers and the request id.
//
//	rt := runtime.New(runtime.Deps{Resolver: resolver, Limiter: limiter})
//	mux.Handle("/functions/v1/ping", rt.Function("ping", pingHandler))
package runtime
