package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig конфигурирует InitLogger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default: info)
	Format      string // json, text (default: json)
	Development bool   // включает человекочитаемый stacktrace и caller
	Output      string // путь к файлу; пусто = stderr
}

// Logger оборачивает zap для структурированного логирования событий движка.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "info", "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт Logger из LogConfig, применяя значения по умолчанию
// для пустых полей (info/json/stderr).
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var writer zapcore.WriteSyncer
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			writer = zapcore.AddSync(os.Stderr)
		} else {
			writer = zapcore.AddSync(f)
		}
	} else {
		writer = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(encoder, writer, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// Sugar returns the cached SugaredLogger for printf-style logging in
// non-hot-path code (CLI tools, one-off diagnostics).
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With returns a derived Logger carrying the given structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent scopes the logger to a named subsystem (e.g. "bot", "position-manager").
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(zap.String("component", name))
}

// WithVenue scopes the logger to a venue name (e.g. "venue_a", "venue_b").
func (l *Logger) WithVenue(venue string) *Logger {
	return l.With(zap.String("venue", venue))
}

// WithSymbol scopes the logger to a canonical symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithPosition scopes the logger to an arbitrage position id.
func (l *Logger) WithPosition(positionID string) *Logger {
	return l.With(zap.String("position_id", positionID))
}
