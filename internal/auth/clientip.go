package auth

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClientIP is reported when no source address is available.
const UnknownClientIP = "unknown"

// ClientIP returns the best-effort originating address of req: the first
// X-Forwarded-For entry, then X-Real-IP, then the connection address.
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(req.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}

	if req.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			return req.RemoteAddr
		}
		if host != "" {
			return host
		}
	}

	return UnknownClientIP
}
