// Package elog builds the structured, file-rotated logger used
// throughout this module, grounded on gcsfuse's internal/logger package
// (zap core writing through a lumberjack.Logger for rotation) rather
// than the standard library's log package.
package elog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where and how verbosely the logger writes.
type Options struct {
	// FilePath is the log file path; empty means stderr only.
	FilePath string
	// MaxSizeMB is the size, in megabytes, at which lumberjack rotates
	// the log file.
	MaxSizeMB int
	// MaxBackups is the number of rotated files lumberjack retains.
	MaxBackups int
	// Debug enables debug-level logging; otherwise the logger is gated
	// at info level.
	Debug bool
}

// New builds a *zap.Logger per opts. Construction never fails: an
// unwritable FilePath is deferred to the first failed write, which zap
// reports through its own internal error handling rather than aborting
// startup.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if opts.FilePath == "" {
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	} else {
		lj := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		sink = zapcore.AddSync(lj)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller())
}
