// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "casebridge")), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("CASEBRIDGE_LOG_LEVEL", "info"),
		Format: getenv("CASEBRIDGE_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Port returns a zap field for the port number.
func Port(port int) zap.Field { return zap.Int("port", port) }

// AppID returns a zap field for an application's public identifier.
func AppID(uuid string) zap.Field { return zap.String("application_id", uuid) }

// RequestType returns a zap field for an outbound request type.
func RequestType(typ string) zap.Field { return zap.String("request_type", typ) }

// CorrelationID returns a zap field for a registry correlation identifier.
func CorrelationID(id string) zap.Field { return zap.String("correlation_id", id) }

// RequestID returns a zap field for a callback's requestId.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// CaseID returns a zap field for a registry case identifier.
func CaseID(id string) zap.Field { return zap.String("case_id", id) }

// Status returns a zap field for a ledger status.
func Status(status string) zap.Field { return zap.String("status", status) }

// Count returns a zap field for an item count.
func Count(name string, n int) zap.Field { return zap.Int(name, n) }
