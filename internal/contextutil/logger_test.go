package contextutil

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestLoggerFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LoggerFromContext(ctx); got != slog.Default() {
		t.Error("LoggerFromContext() should fall back to slog.Default()")
	}

	custom := slog.Default().With("request_id", "abc")
	ctx = WithLogger(ctx, custom)
	if got := LoggerFromContext(ctx); got != custom {
		t.Error("LoggerFromContext() should return the logger stored by WithLogger")
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("WithTimeout(0) should not set a deadline")
	}

	ctx, cancel = WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("WithTimeout(1m) should set a deadline")
	}
}
