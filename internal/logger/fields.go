package logger

import (
	"time"

	"go.uber.org/zap"
)

// Typed field constructors re-exported so callers never import zap directly.

func String(key, val string) Field { return zap.String(key, val) }

func Int(key string, val int) Field { return zap.Int(key, val) }

func Int64(key string, val int64) Field { return zap.Int64(key, val) }

func Float64(key string, val float64) Field { return zap.Float64(key, val) }

func Bool(key string, val bool) Field { return zap.Bool(key, val) }

func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

// Error creates a field under the key "error".
func Error(err error) Field { return zap.Error(err) }

// Any falls back to reflection; prefer the typed constructors.
func Any(key string, val any) Field { return zap.Any(key, val) }
