package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ********************************************************
// ********* LOGGING **************************************
// ********************************************************

// DefaultLogFile is where file output goes unless SetLogFile says otherwise
const DefaultLogFile = "/tmp/forecast.log"

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	INFORM
	HIGHLIGHT
	WARN
	ERROR
	FATAL
)

var (
	mu           sync.Mutex
	showDateTime bool
	outputType   = 'c'
	logFilePath  = DefaultLogFile
	level        = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	rotator      *lumberjack.Logger
	base         *zap.Logger
)

func init() {
	rebuild()
}

// SetShowDateTime toggles the timestamp column
func SetShowDateTime(value bool) {
	mu.Lock()
	defer mu.Unlock()
	showDateTime = value
	rebuild()
}

// SetLogOutput sets the output destination for logs
// 'c' for console (stderr), 'f' for file, 'b' for both.
// Stdout is never used because the stdio transport owns it.
func SetLogOutput(t rune) error {
	switch t {
	case 'c', 'f', 'b':
	default:
		return fmt.Errorf("invalid log output type: %c", t)
	}
	mu.Lock()
	defer mu.Unlock()
	outputType = t
	rebuild()
	return nil
}

// SetLogFile changes the rotated log file used by the 'f' and 'b' outputs
func SetLogFile(path string) {
	if path == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	logFilePath = path
	rebuild()
}

// SetLevel sets the minimum level from its name (debug, info, warn, error)
func SetLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return fmt.Errorf("unknown log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// SetOutputWriter sends all log output to w. Used by tests to capture output.
func SetOutputWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = zap.New(zapcore.NewCore(encoder(), zapcore.AddSync(w), level), zap.AddCaller(), zap.AddCallerSkip(2))
}

// Sync flushes buffered output and closes the log file if one is open
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	if rotator != nil {
		_ = rotator.Close()
	}
}

func encoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	if showDateTime {
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	} else {
		cfg.TimeKey = ""
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// rebuild must be called with mu held
func rebuild() {
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	var cores []zapcore.Core
	if outputType == 'c' || outputType == 'b' {
		cores = append(cores, zapcore.NewCore(encoder(), zapcore.Lock(os.Stderr), level))
	}
	if outputType == 'f' || outputType == 'b' {
		rotator = &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14,
		}
		cores = append(cores, zapcore.NewCore(encoder(), zapcore.AddSync(rotator), level))
	}
	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case INFORM:
		return "INFORM"
	case HIGHLIGHT:
		return "HIGHLIGHT"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func write(l LogLevel, msg string, v ...any) {
	mu.Lock()
	lg := base
	mu.Unlock()

	primitives, objects := processArgs(v...)
	if len(primitives) > 0 {
		msg = msg + " " + strings.Join(primitives, " ")
	}

	fields := make([]zap.Field, 0, len(objects)+1)
	// INFORM and HIGHLIGHT have no zap equivalent so they travel as a tag
	if l == INFORM || l == HIGHLIGHT {
		fields = append(fields, zap.String("tag", l.String()))
	}
	for i, obj := range objects {
		fields = append(fields, zap.Any(fmt.Sprintf("object%d", i), obj))
	}

	if ce := lg.Check(l.zapLevel(), msg); ce != nil {
		ce.Write(fields...)
	}
}

// processArgs splits arguments into printable primitives and complex values.
// Complex values are replaced by a type placeholder in the message and
// returned separately so they can be attached as structured fields.
func processArgs(args ...any) ([]string, []any) {
	if len(args) == 0 {
		return nil, nil
	}

	var primitives []string
	var objects []any

	for _, arg := range args {
		if isPrimitive(arg) {
			primitives = append(primitives, formatPrimitive(arg))
			continue
		}
		if _, err := json.Marshal(arg); err != nil {
			primitives = append(primitives, fmt.Sprintf("%v", arg))
			continue
		}
		primitives = append(primitives, fmt.Sprintf("[Object of type %s]", reflect.TypeOf(arg)))
		objects = append(objects, arg)
	}
	return primitives, objects
}

func formatPrimitive(arg any) string {
	switch v := arg.(type) {
	case float32:
		return fmt.Sprintf("%.2f", v)
	case float64:
		return fmt.Sprintf("%.2f", v)
	case string:
		return v
	case error:
		return v.Error()
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isPrimitive checks if a value is a primitive type
func isPrimitive(v any) bool {
	if v == nil {
		return true
	}

	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, error, fmt.Stringer:
		return true
	default:
		return false
	}
}

// Convenience methods using the default logger
func Debug(msg string, v ...any) {
	write(DEBUG, msg, v...)
}

func Info(msg string, v ...any) {
	write(INFO, msg, v...)
}

func Inform(msg string, v ...any) {
	write(INFORM, msg, v...)
}

func Highlight(msg string, v ...any) {
	write(HIGHLIGHT, msg, v...)
}

func Warn(msg string, v ...any) {
	write(WARN, msg, v...)
}

func Error(msg string, v ...any) {
	write(ERROR, msg, v...)
}

// Fatal logs and exits the process
func Fatal(msg string, v ...any) {
	write(FATAL, msg, v...)
	os.Exit(1)
}
