// Package socketlog provides a thread-safe logger for socket-based applications,
// built on zap. It supports multiple log levels (INFO, WARNING, ERROR, DEBUG)
// and output modes (DEV, RELEASE, VERBOSE, HIDDEN).
//
// Key Features:
// - ANSI colored console output, configurable per level
// - File logging with size based rotation (lumberjack) behind a buffered syncer
// - Module-aware formatting (default: "[ChunkHub]")
// - Structured fields through zap.Field
//
// Example:
//
//	logger, _ := socketlog.NewLogger("./logs", socketlog.RELEASE)
//	logger.Log("Server", socketlog.INFO, "Client connected", zap.String("remote", addr))
//	defer logger.Close()
package socketlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogType represents different severity levels for log messages
type LogType uint8

const (
	INFO    LogType = iota // Informational messages (normal operations)
	WARNING                // Warnings (potential issues, not errors)
	ERROR                  // Errors (something went wrong)
	DEBUG                  // Debugging messages (verbose output for development)
)

// LogMode controls how and where logs are output
type LogMode uint8

const (
	DEV     LogMode = iota // Console only, all logs
	RELEASE                // Console + file, no DEBUG
	VERBOSE                // Console + file, all logs
	HIDDEN                 // Console + file, INFO and ERROR only
)

// ANSI color codes for console output
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// Application constants
const (
	module     = "ChunkHub"
	timeFormat = "2006-01-02 15:04:05"
	bufferSize = 4096 // Buffer size for file writes

	flushInterval = time.Second
	maxFileSizeMB = 100
	maxBackups    = 5
)

// Pre-computed string constants for log types
var logTypeStrings = [4]string{
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
	DEBUG:   "DEBUG",
}

var logModeStrings = [4]string{
	DEV:     "dev",
	RELEASE: "release",
	VERBOSE: "verbose",
	HIDDEN:  "hidden",
}

func (t LogType) String() string {
	if t >= 4 {
		return "UNKNOWN"
	}
	return logTypeStrings[t]
}

func (t LogType) level() zapcore.Level {
	switch t {
	case WARNING:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case DEBUG:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func logTypeOf(level zapcore.Level) LogType {
	switch level {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.InfoLevel:
		return INFO
	case zapcore.WarnLevel:
		return WARNING
	default:
		return ERROR
	}
}

func (m LogMode) String() string {
	if m >= 4 {
		return "unknown"
	}
	return logModeStrings[m]
}

// ParseLogMode maps dev, release, verbose or hidden (any case) to a LogMode.
func ParseLogMode(s string) (LogMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for mode, str := range logModeStrings {
		if str == name {
			return LogMode(mode), nil
		}
	}
	return DEV, errors.Newf("[SocketLog] unknown log mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m LogMode) MarshalText() ([]byte, error) {
	if m >= 4 {
		return nil, errors.Newf("[SocketLog] invalid log mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LogMode) UnmarshalText(text []byte) error {
	mode, err := ParseLogMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Logger handles all logging operations, including thread safety, output mode, and file management.
type Logger struct {
	mu      sync.RWMutex                 // Guards closed against in-flight writes
	zap     *zap.Logger                  // Tee of console and file cores
	logFile *lumberjack.Logger           // Rotating log file (if enabled)
	writer  *zapcore.BufferedWriteSyncer // Buffered writer for file output
	colors  atomic.Pointer[[4]string]    // Array of colors indexed by LogType
	mode    LogMode                      // Current logging mode (DEV, RELEASE, etc.)
	closed  bool                         // Indicates if the logger has been closed
}

// NewLogger creates a new logger instance with specified directory and mode
func NewLogger(logDir string, mode LogMode) (*Logger, error) {
	return newLogger(logDir, mode, zapcore.Lock(os.Stdout))
}

func newLogger(logDir string, mode LogMode, console zapcore.WriteSyncer) (*Logger, error) {
	if mode >= 4 {
		return nil, errors.Newf("[SocketLog] invalid log mode %d", uint8(mode))
	}

	l := &Logger{mode: mode}
	l.colors.Store(&[4]string{
		INFO:    Green,
		WARNING: Yellow,
		ERROR:   Red,
		DEBUG:   Blue,
	})

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(l.encoderConfig(true)), console, l.enabler(0)),
	}

	// Create log file for non-DEV modes
	if mode != DEV {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, errors.Wrap(err, "[SocketLog] failed to create log directory")
		}

		l.logFile = &lumberjack.Logger{
			Filename:   filepath.Join(logDir, time.Now().Format("20060102_150405")+".log"),
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxBackups,
			LocalTime:  true,
		}
		l.writer = &zapcore.BufferedWriteSyncer{
			WS:            zapcore.AddSync(l.logFile),
			Size:          bufferSize,
			FlushInterval: flushInterval,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(l.encoderConfig(false)), l.writer, l.enabler(1)))
	}

	l.zap = zap.New(zapcore.NewTee(cores...)).Named(module)
	return l, nil
}

// Pre-computed complete lookup table [mode][logType] -> [shouldPrint, shouldSave]
var completeLogBehavior = [4][4][2]bool{
	// DEV mode
	{
		INFO:    {true, false},
		WARNING: {true, false},
		ERROR:   {true, false},
		DEBUG:   {true, false},
	},
	// RELEASE mode
	{
		INFO:    {true, true},
		WARNING: {true, true},
		ERROR:   {true, true},
		DEBUG:   {false, false}, // DEBUG disabled in RELEASE
	},
	// VERBOSE mode
	{
		INFO:    {true, true},
		WARNING: {true, true},
		ERROR:   {true, true},
		DEBUG:   {true, true},
	},
	// HIDDEN mode
	{
		INFO:    {true, true},
		WARNING: {false, false}, // WARNING disabled in HIDDEN
		ERROR:   {true, true},
		DEBUG:   {false, false}, // DEBUG disabled in HIDDEN
	},
}

// shouldLogFast uses complete lookup table for O(1) decision making
func shouldLogFast(mode LogMode, logType LogType) (shouldPrint, shouldSave bool) {
	if mode >= 4 || logType >= 4 {
		return false, false
	}

	behavior := completeLogBehavior[mode][logType]
	return behavior[0], behavior[1]
}

// enabler filters a core by one column (0 console, 1 file) of the mode table.
func (l *Logger) enabler(column int) zap.LevelEnablerFunc {
	return func(level zapcore.Level) bool {
		return completeLogBehavior[l.mode][logTypeOf(level)][column]
	}
}

func (l *Logger) encoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(timeFormat) + "]")
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + logTypeOf(level).String() + "]")
		},
	}
	if color {
		cfg.EncodeLevel = l.encodeColorLevel
	}
	return cfg
}

func (l *Logger) encodeColorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	logType := logTypeOf(level)
	colors := l.colors.Load()
	enc.AppendString("[" + colors[logType] + logType.String() + Reset + "]")
}

// Log writes a log message based on the current mode and log type.
// The consumer names the component emitting the message.
func (l *Logger) Log(consumer string, logType LogType, message string, fields ...zap.Field) {
	// Fast path: check if we should log at all
	shouldPrint, shouldSave := shouldLogFast(l.mode, logType)
	if !shouldPrint && !shouldSave {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	if ce := l.zap.Check(logType.level(), "["+consumer+"] "+message); ce != nil {
		ce.Write(fields...)
	}
}

// Mode returns the output mode the logger was created with.
func (l *Logger) Mode() LogMode {
	return l.mode
}

// Flush forces any buffered log data to be written to disk
func (l *Logger) Flush() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.writer != nil && !l.closed {
		return l.writer.Sync()
	}
	return nil
}

// Close safely closes the logger and releases resources
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	// Flush and stop writer
	if l.writer != nil {
		if err := l.writer.Stop(); err != nil {
			return errors.Wrap(err, "failed to flush buffer")
		}
	}

	// Close file
	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return errors.Wrap(err, "failed to close log file")
		}
	}

	return nil
}

// SetColor allows changing the color for a specific log type
func (l *Logger) SetColor(logType LogType, color string) {
	if logType >= 4 {
		return
	}

	switch color {
	case Red, Green, Yellow, Blue, Magenta, Cyan:
	default:
		return
	}

	for {
		old := l.colors.Load()
		next := *old
		next[logType] = color
		if l.colors.CompareAndSwap(old, &next) {
			return
		}
	}
}
