package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZap(zap.New(core)).With(String("task", "organize"))
	l.Info("assembled", Int("pages", 3), Error("err", errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["task"] != "organize" || ctx["pages"] != int64(3) || ctx["err"] != "boom" {
		t.Fatalf("unexpected context %v", ctx)
	}
}

func TestLogTracerReportsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tracer := LogTracer(NewZap(zap.New(core)))
	_, span := tracer.StartSpan(context.Background(), "build")
	span.SetTag("pages", 2)
	span.SetError(errors.New("page out of range"))
	span.Finish()

	if n := logs.FilterMessage("span failed").Len(); n != 1 {
		t.Fatalf("expected failed span log, got %d", n)
	}
}

func TestNewZapFromLevelRejectsUnknown(t *testing.T) {
	if _, err := NewZapFromLevel("loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewZapFromLevel("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
	l, err := NewZapFromLevel("debug", "json")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Debug("ok")
}
