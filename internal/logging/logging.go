// Package logging wires up the proxy's structured logger the way the
// teacher's scheduler/cmd/pd-server/main.go does: pingcap/log's global
// zap logger, replaced once at startup from a parsed level, so every
// package can log via pingcap/log.Info/Warn/Error without threading a
// logger handle through every constructor.
package logging

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init configures the global pingcap/log logger at the given level
// ("debug", "info", "warn", "error"), defaulting to info on an
// unrecognized value.
func Init(level string) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := &log.Config{Level: zapLevel.String()}
	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// With returns a child logger annotated with the given fields, for
// call sites that want a consistent prefix (batch number, resolver
// id) across several related log lines.
func With(fields ...zap.Field) *zap.Logger {
	return log.L().With(fields...)
}
