package zaplog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core))

	logger.WithFields(map[string]any{"provider": "stripe", "booking_id": "bk_1"}).Info("reconciled", "outcome", "applied")
	logger.Trace("trace line")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["provider"] != "stripe" || fields["booking_id"] != "bk_1" || fields["outcome"] != "applied" {
		t.Fatalf("expected structured fields, got %#v", fields)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("expected trace to log at debug, got %s", entries[1].Level)
	}
}

func TestProviderNamesLoggers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	provider := NewProvider(New(zap.New(core)))

	provider.GetLogger("bookings").Info("hello")
	if got := logs.All()[0].LoggerName; got != "bookings" {
		t.Fatalf("expected named logger, got %q", got)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if parseLevel("DEBUG") != zapcore.DebugLevel {
		t.Fatalf("expected debug level")
	}
	if parseLevel("loud") != zapcore.InfoLevel {
		t.Fatalf("expected info fallback")
	}
}
