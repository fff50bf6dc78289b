// Package logging wires zap into the shelfwire Logger interface for the
// standalone services.
package logging

import (
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds a production zap logger at the given level.
func InitLogger(level string) *zap.SugaredLogger {
	logConfig := zap.NewProductionConfig()
	logConfig.Sampling = nil
	logConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	logConfig.DisableStacktrace = true

	logConfig.Level = zap.NewAtomicLevelAt(DetermineLogLevel(level))

	logger, err := logConfig.Build()
	if err != nil {
		log.Fatal(err)
	}

	return logger.Sugar()
}

// DetermineLogLevel maps a level string to a zap level, defaulting to info.
func DetermineLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// Adapter adapts a zap SugaredLogger to the shelfwire.Logger interface.
type Adapter struct {
	sugar *zap.SugaredLogger
}

// NewAdapter wraps a SugaredLogger.
func NewAdapter(sugar *zap.SugaredLogger) *Adapter {
	return &Adapter{sugar: sugar}
}

func (a *Adapter) Debugf(format string, args ...interface{}) { a.sugar.Debugf(format, args...) }
func (a *Adapter) Infof(format string, args ...interface{})  { a.sugar.Infof(format, args...) }
func (a *Adapter) Warnf(format string, args ...interface{})  { a.sugar.Warnf(format, args...) }
func (a *Adapter) Errorf(format string, args ...interface{}) { a.sugar.Errorf(format, args...) }
func (a *Adapter) Info(message string)                       { a.sugar.Info(message) }
