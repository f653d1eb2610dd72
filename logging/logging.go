package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger  = zap.NewNop()
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

// SetupLogger initializes the process logger. Console output goes to stderr;
// when logFilePath is not empty a JSON copy of every entry is appended to it.
func SetupLogger(logFilePath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.Format("2006/01/02 15:04:05.000"))
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(f),
			zap.DebugLevel,
		))
	}

	logger = zap.New(zapcore.NewTee(cores...))
	logger.Debug("logger started", zap.String("logfile", logFilePath), zap.Bool("debug", debug))

	isSetup = true
	return nil
}

// CloseLogger flushes buffered entries and closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	_ = logger.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logger = zap.NewNop()
	isSetup = false
}

// Logger returns the process logger
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Named returns a child of the process logger for one component
func Named(name string) *zap.Logger {
	return Logger().Named(name)
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	Logger().Sugar().Infof(format, args...)
}

// DebugLog logs a message at debug level
func DebugLog(format string, args ...interface{}) {
	Logger().Sugar().Debugf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	Logger().Sugar().Errorf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	Logger().Sugar().Warnf(format, args...)
}

// LogImageProcessed logs the terminal outcome of a file
func LogImageProcessed(path string, outcome string, destination string, errMsg string) {
	l := Logger()
	if errMsg != "" {
		l.Warn("file not archived",
			zap.String("path", path),
			zap.String("outcome", outcome),
			zap.String("error", errMsg))
		return
	}
	l.Debug("file archived",
		zap.String("path", path),
		zap.String("outcome", outcome),
		zap.String("destination", destination))
}
