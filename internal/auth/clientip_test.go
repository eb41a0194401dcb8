package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first forwarded entry",
			headers:    map[string]string{HeaderForwardedFor: "203.0.113.7, 10.0.0.1", HeaderRealIP: "198.51.100.2"},
			remoteAddr: "10.0.0.9:1234",
			want:       "203.0.113.7",
		},
		{
			name:       "real ip when no forwarded",
			headers:    map[string]string{HeaderRealIP: "198.51.100.2"},
			remoteAddr: "10.0.0.9:1234",
			want:       "198.51.100.2",
		},
		{
			name:       "empty forwarded falls through",
			headers:    map[string]string{HeaderForwardedFor: " , 10.0.0.1", HeaderRealIP: "198.51.100.2"},
			remoteAddr: "10.0.0.9:1234",
			want:       "198.51.100.2",
		},
		{
			name:       "connection address",
			remoteAddr: "192.0.2.10:5555",
			want:       "192.0.2.10",
		},
		{
			name:       "connection address without port",
			remoteAddr: "192.0.2.11",
			want:       "192.0.2.11",
		},
		{
			name: "unknown",
			want: UnknownClientIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
