package logger

import (
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{name: "development mode", debug: true},
		{name: "production mode", debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger() error = %v, want nil", err)
			}
			if log == nil {
				t.Fatal("NewLogger() returned nil logger")
			}
		})
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()

	// Should not panic on any level
	log.Debug("debug message")
	log.Info("info message", String("key", "value"))
	log.Warn("warn message", Int("count", 1))
	log.Error("error message", Error(errors.New("boom")))

	child := log.With(String("component", "test"))
	if child == nil {
		t.Fatal("With() returned nil logger")
	}
	child.Info("child message")

	if err := log.Sync(); err != nil {
		t.Errorf("Sync() error = %v, want nil", err)
	}
}

func TestFieldConstructors(t *testing.T) {
	log := NewNopLogger()

	// Exercise every constructor; zap panics on malformed fields
	log.Info("all fields",
		String("s", "v"),
		Int("i", 1),
		Int64("i64", 2),
		Float64("f", 3.5),
		Bool("b", true),
		Duration("d", time.Second),
		Error(errors.New("x")),
		Any("any", map[string]int{"k": 1}),
	)
}
