package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogFilePermissions = 0600
	InfoLogLevel       = "info"
)

var (
	globalLogger *zap.Logger
	loggerMutex  sync.RWMutex
	once         sync.Once

	GlobalEnableConsoleLogger = true
	GlobalEnableFileLogger    bool
	GlobalLogPath             = "/tmp/devman.log"
	GlobalLogLevel            = InfoLogLevel
	GlobalLogFile             *os.File
)

// Logger wraps a zap logger with printf-style helpers used across devman.
type Logger struct {
	*zap.Logger
}

// InitLoggerOutputs loads logger settings from viper if they are set.
func InitLoggerOutputs() {
	if viper.IsSet("log.path") {
		GlobalLogPath = viper.GetString("log.path")
	}
	if viper.IsSet("log.level") {
		GlobalLogLevel = viper.GetString("log.level")
	}
	if viper.IsSet("log.console") {
		GlobalEnableConsoleLogger = viper.GetBool("log.console")
	}
	if viper.IsSet("log.file") {
		GlobalEnableFileLogger = viper.GetBool("log.file")
	}
}

func InitProduction() {
	once.Do(func() {
		if GlobalLogLevel == "" {
			GlobalLogLevel = InfoLogLevel
		}
		level := zap.NewAtomicLevelAt(getZapLevel(GlobalLogLevel))

		var cores []zapcore.Core
		if GlobalEnableConsoleLogger {
			cores = append(cores, createConsoleCore(level))
		}
		if GlobalEnableFileLogger {
			if fileCore, err := createFileCore(level); err == nil {
				cores = append(cores, fileCore)
			}
		}

		globalLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named("devman")
	})
}

func createConsoleCore(level zap.AtomicLevel) zapcore.Core {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)
}

func createFileCore(level zap.AtomicLevel) (zapcore.Core, error) {
	logFile, err := os.OpenFile(
		GlobalLogPath,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		LogFilePermissions,
	)
	if err != nil {
		return nil, err
	}
	GlobalLogFile = logFile // Store for cleanup

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(logFile),
		level,
	), nil
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the global logger, initializing it on first use.
func Get() *Logger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		InitProduction()
	}
	return &Logger{Logger: globalLogger}
}

func SetGlobalLogger(l *Logger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = l.Logger
}

func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
