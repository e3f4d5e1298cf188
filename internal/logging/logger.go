// Package logging builds the process logger.
//
// Lines are written as `<YYYY-MM-DD HH:MM:SS> [<LEVEL>]: <message>`.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
)

// TimeLayout is the timestamp layout of every log line.
const TimeLayout = "2006-01-02 15:04:05"

// New creates a logger writing to stdout at the configured level.
func New(cfg config.LoggingConfig) *zap.SugaredLogger {
	return NewWithWriter(os.Stdout, ParseLevel(cfg.Level))
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level zapcore.Level) *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core).Sugar()
}

// Default creates a logger for use before configuration is loaded.
func Default() *zap.SugaredLogger {
	return NewWithWriter(os.Stdout, zapcore.InfoLevel)
}

// ParseLevel converts a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelName(l) + "]:")
}

func levelName(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}
