// Package logger builds the process-wide zap logger. File output is JSON
// with rotation; console output goes to stderr so MCP stdio framing on
// stdout stays clean.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing JSON lines to logPath (rotated) and
// human-readable output to stderr. An empty logPath disables the file
// core. verbose lowers the stderr threshold from Warn to Debug.
func New(logPath string, verbose bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleLevel := zap.WarnLevel
	if verbose {
		consoleLevel = zap.DebugLevel
	}
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	if logPath == "" {
		return zap.New(consoleCore)
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		zap.InfoLevel,
	)

	return zap.New(zapcore.NewTee(fileCore, consoleCore))
}
