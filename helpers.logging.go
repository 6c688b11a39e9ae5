package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LoggerContextKey ContextKey = "request.logger"

	megabyte = 1 << 20
)

// LogFileWriter is a zapcore.WriteSyncer writing to files under the logs
// folder. A new file is opened once the current one would exceed the
// configured size, so a single entry never spans two files.
type LogFileWriter struct {
	mu       sync.Mutex
	clock    Clocker
	folder   string
	prefix   string
	maxBytes int64
	written  int64
	file     *os.File
}

// NewLogFileWriter names files after the served roles and the environment.
func NewLogFileWriter(config *Config, clock Clocker) *LogFileWriter {
	env := "dev"
	if config.IsProduction {
		env = "prod"
	}
	return &LogFileWriter{
		clock:    clock,
		folder:   config.LogFolder,
		prefix:   "bookclub." + strings.Join(config.Services, "-") + "." + env,
		maxBytes: int64(config.LogMaxSize) * megabyte,
	}
}

func (lw *LogFileWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	size := int64(len(p))
	if size > lw.maxBytes {
		return 0, fmt.Errorf("logging: entry of %d bytes exceeds the max file size of %d bytes", size, lw.maxBytes)
	}
	if lw.file == nil || lw.written+size > lw.maxBytes {
		if err := lw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := lw.file.Write(p)
	lw.written += int64(n)
	return n, err
}

// rotate must be called with the lock held.
func (lw *LogFileWriter) rotate() error {
	if lw.file != nil {
		if err := lw.file.Close(); err != nil {
			return err
		}
		lw.file = nil
	}
	path := LogFilePath(lw.folder, lw.prefix, lw.clock.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	lw.file = file
	lw.written = 0
	return nil
}

func (lw *LogFileWriter) Sync() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.file == nil {
		return nil
	}
	return lw.file.Sync()
}

func (lw *LogFileWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.file == nil {
		return nil
	}
	err := lw.file.Close()
	lw.file = nil
	return err
}

// LogFilePath builds a file name like bookclub.books-loans.dev.20240229.101500.log
func LogFilePath(folder, prefix string, t time.Time) string {
	return filepath.Join(folder, prefix+"."+t.Format("20060102.150405")+".log")
}

// stdout ignores Sync since some platforms fail to sync a console.
type stdout struct{}

func (stdout) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdout) Sync() error { return nil }

func encoderConfig(isProd bool) zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	if isProd {
		ec = zap.NewProductionEncoderConfig()
	}
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.LevelKey = "lvl"
	ec.NameKey = "name"
	ec.MessageKey = "msg"
	ec.CallerKey = "caller"
	ec.StacktraceKey = "skt"
	return ec
}

// SetupLogging builds the application logger. Entries always go as JSON to
// the log files and are echoed on the console outside production. Only fatal
// entries carry a stacktrace. The returned function flushes buffered entries.
func SetupLogging(config *Config, w zapcore.WriteSyncer, clock zapcore.Clock) (*zap.Logger, func() error) {
	ec := encoderConfig(config.IsProduction)
	cores := []zapcore.Core{zapcore.NewCore(zapcore.NewJSONEncoder(ec), w, config.LogLevel)}
	if !config.IsProduction {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(stdout{}), config.LogLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel),
		zap.WithClock(clock),
	).With(
		zap.String("app.commit", config.GitCommit),
		zap.String("app.tag", config.GitTag),
		zap.String("app.built", config.BuildTime),
		zap.Strings("app.services", config.Services),
	)

	flush := func() error {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("[flush logs]: %w", err)
		}
		return nil
	}
	return logger, flush
}

// GetLoggerFromContext returns the request scoped logger set by the core
// middleware, or the application logger outside of a request.
func (api *APIHandler) GetLoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return api.logger
}
