package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init builds the process-wide logger. Production gets sampled JSON with
// ISO8601 timestamps; anything else gets a colorized development console.
// The first call wins, later calls return the existing logger.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			lvl = zapcore.InfoLevel
		}

		var cfg zap.Config
		switch environment {
		case "production":
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.DisableStacktrace = true
			cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
		default:
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
		if format == "json" {
			cfg.Encoding = "json"
		} else {
			cfg.Encoding = "console"
		}

		// Container runtimes collect stdout/stderr, never log to files.
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		logger, buildErr := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if buildErr != nil {
			panic("logger init: " + buildErr.Error())
		}

		globalLogger = logger.With(zap.String("service", "course-admin"))
		zap.ReplaceGlobals(globalLogger)
	})

	return globalLogger
}

// Get returns the global logger, initializing a safe default if Init was
// never called (tests, one-off tools).
func Get() *zap.Logger {
	if globalLogger == nil {
		return Init("production", "info", "json")
	}
	return globalLogger
}

// Sync flushes buffered entries. Call on shutdown.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Field helpers so call sites do not need a zap import.

func String(key, value string) zap.Field { return zap.String(key, value) }

func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

func Int(key string, value int) zap.Field { return zap.Int(key, value) }

func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }

// ErrorField wraps an error; named to avoid clashing with Error above.
func ErrorField(err error) zap.Field { return zap.Error(err) }
