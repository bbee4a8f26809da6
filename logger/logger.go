package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/scriptbox/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "scriptbox"

func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New creates a new logger instance based on configuration. Entries go to
// stderr so the stdio transport keeps stdout to itself.
func New(mode, level string, opts ...zap.Option) (*zap.Logger, error) {
	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.InitialFields = map[string]any{"service": ServiceName}
	default:
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build(opts...)
}
