package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerNames lists every named logger of this module. A name may have a
// subsystem after a slash, a level set for the component applies to all of them.
var LoggerNames = []string{
	"msgpool",
	"reactor",
	"session",
	"transport/rpc",
	"cli",
	"server",
}

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	factoryOnce sync.Once
)

// SetLogOutput redirects all loggers created by CreateLogger
func SetLogOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// logWriter forwards to the current output, so SetLogOutput also affects existing loggers
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output.Write(p)
}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// xioLogger prefixes every line with the level and the component of the logger
type xioLogger struct {
	component string
	subsystem string
	level     logger.LogLevel
	logger    *log.Logger
}

func (l *xioLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *xioLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *xioLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *xioLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *xioLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *xioLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message as "LEVEL | component | [subsystem] message"
func (l *xioLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if l.subsystem != "" {
		message = "[" + l.subsystem + "] " + message
	}
	l.logger.Printf("%-5s | %-9s | %s", levelStr, l.component, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	component, subsystem, _ := strings.Cut(pkgName, "/")

	return &xioLogger{
		component: component,
		subsystem: subsystem,
		level:     logger.INFO,
		logger:    log.New(logWriter{}, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ParseLogLevels parses "LEVEL[,NAME=LEVEL...]" into a level per logger name.
// A NAME without subsystem applies to all subsystems of the component,
// e.g. "warn,reactor=debug,transport=error".
func ParseLogLevels(spec string) (map[string]logger.LogLevel, error) {
	levels := make(map[string]logger.LogLevel, len(LoggerNames))

	def, overrides, _ := strings.Cut(spec, ",")
	if strings.Contains(def, "=") {
		// no default given
		overrides, def = spec, ""
	}
	defLevel, err := ParseLogLevel(def)
	if err != nil {
		return nil, err
	}
	for _, name := range LoggerNames {
		levels[name] = defLevel
	}

	if overrides == "" {
		return levels, nil
	}
	for _, part := range strings.Split(overrides, ",") {
		name, lvl, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("invalid log level override %q (expected NAME=LEVEL)", part)
		}
		level, err := ParseLogLevel(lvl)
		if err != nil {
			return nil, err
		}
		matched := false
		for _, known := range LoggerNames {
			if known == name || strings.HasPrefix(known, name+"/") {
				levels[known] = level
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown logger %q, must be one of %s", name, strings.Join(LoggerNames, ", "))
		}
	}
	return levels, nil
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom logger factory and sets the level of all named
// loggers, spec is a single level or the format accepted by ParseLogLevels
func InitLoggers(spec string) error {
	levels, err := ParseLogLevels(spec)
	if err != nil {
		return err
	}

	// dragonboat panics when the factory is set twice
	factoryOnce.Do(func() { logger.SetLoggerFactory(CreateLogger) })

	for name, lvl := range levels {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
