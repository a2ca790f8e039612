package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// L is the global application logger. It writes JSON to stdout until Init
// installs the configured sinks.
var L = build(zapcore.AddSync(os.Stdout)).Sugar()

func build(sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
	return zap.New(core)
}

// Init reconfigures the global logger. A non-empty file path adds a rolling
// log file alongside stdout.
func Init(lvl, file string) {
	SetLevel(lvl)
	sink := zapcore.AddSync(os.Stdout)
	if file != "" {
		rolling := zapcore.AddSync(&lumberjack.Logger{
			Filename: file, MaxSize: 100, MaxAge: 28, Compress: true,
		})
		sink = zapcore.NewMultiWriteSyncer(sink, rolling)
	}
	L = build(sink).Sugar()
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}
}
