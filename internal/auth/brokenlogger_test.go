package auth

import (
	"context"

	"github.com/vyrodovalexey/basefn/internal/observability"
)

// brokenLogger panics on every call, like a logger whose sink has failed.
type brokenLogger struct{}

func (brokenLogger) Debug(string, ...observability.Field) { panic("sink broken") }
func (brokenLogger) Info(string, ...observability.Field)  { panic("sink broken") }
func (brokenLogger) Warn(string, ...observability.Field)  { panic("sink broken") }
func (brokenLogger) Error(string, ...observability.Field) { panic("sink broken") }

func (brokenLogger) With(...observability.Field) observability.Logger { panic("sink broken") }

func (brokenLogger) WithContext(context.Context) observability.Logger { panic("sink broken") }

func (brokenLogger) Sync() error { panic("sink broken") }
