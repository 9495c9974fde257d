package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// sentinelLogger implements the ILogger interface with custom formatting
type sentinelLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *sentinelLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *sentinelLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *sentinelLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *sentinelLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *sentinelLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *sentinelLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *sentinelLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	logOutput   io.Writer = os.Stdout
	factoryOnce sync.Once
)

// CreateLogger implements the dragonboat logger.Factory signature
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := log.New(logOutput, "", log.Ldate|log.Ltime)

	return &sentinelLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// newLogOutput returns stdout or a rotating file writer
func newLogOutput(config LogConfig) io.Writer {
	if config.File == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   true,
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// LoggerNames lists every logger used by this module
var LoggerNames = []string{"transport/rpc", "rpc", "cluster", "server"}

// InitLoggers installs the custom logger factory and applies the configured level.
// The factory (and therefore the output) can only be installed once per process.
func InitLoggers(config LogConfig) error {
	level, err := ParseLogLevel(config.Level)
	if err != nil {
		return err
	}

	factoryOnce.Do(func() {
		logOutput = newLogOutput(config)
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
