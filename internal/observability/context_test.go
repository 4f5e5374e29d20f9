package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestContextLogger(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatal("LoggerFromContext on empty context should be nil")
	}
	logger := zap.NewNop()
	ctx := ContextWithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Errorf("LoggerFromContext() = %p, want %p", got, logger)
	}
}

func TestContextCorrelationID(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("CorrelationIDFromContext on empty context = %q, want empty", got)
	}
	ctx := ContextWithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationIDFromContext(ctx); got != "abc-123" {
		t.Errorf("CorrelationIDFromContext() = %q, want abc-123", got)
	}
}
