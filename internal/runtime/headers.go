package runtime

import (
	"net/http"
	"strconv"

	"github.com/vyrodovalexey/basefn/internal/ratelimit"
)

// Response header names.
const (
	HeaderRequestID          = "X-Request-ID"
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAllowHeaders = "Access-Control-Allow-Headers"
	HeaderAllowMethods = "Access-Control-Allow-Methods"
)

// Fixed CORS policy values.
const (
	CORSAllowOrigin  = "*"
	CORSAllowHeaders = "authorization, x-client-info, apikey, content-type"
	CORSAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// PreflightBody is the body of a CORS preflight response.
const PreflightBody = "ok"

// CORSHeaders returns a fresh copy of the CORS headers.
func CORSHeaders() http.Header {
	h := make(http.Header, 3)
	h.Set(HeaderAllowOrigin, CORSAllowOrigin)
	h.Set(HeaderAllowHeaders, CORSAllowHeaders)
	h.Set(HeaderAllowMethods, CORSAllowMethods)
	return h
}

// Preflight writes the CORS preflight response.
func Preflight(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range CORSHeaders() {
		h[k] = vs
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(PreflightBody))
}

func setRateLimitHeaders(h http.Header, d *ratelimit.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetTime.Unix(), 10))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfterSeconds()))
	}
}
