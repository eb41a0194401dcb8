package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/basefn/internal/apierr"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "service unavailable", err: apierr.Unavailable("busy"), want: true},
		{name: "internal", err: apierr.Internal(errors.New("x")), want: true},
		{name: "invalid input", err: apierr.InvalidInput("bad"), want: false},
		{name: "unauthorized", err: apierr.Unauthorized("no"), want: false},
		{name: "forbidden", err: apierr.Forbidden("no"), want: false},
		{name: "not found", err: apierr.NotFound("no"), want: false},
		{name: "rate limited", err: apierr.RateLimited("slow"), want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "net timeout", err: timeoutError{}, want: true},
		{name: "op error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: true},
		{name: "refused", err: syscall.ECONNREFUSED, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "permanent eof", err: Permanent(io.EOF), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Permanent(nil))

	err := Permanent(io.EOF)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "EOF", err.Error())
	assert.False(t, IsPermanent(io.EOF))
}
