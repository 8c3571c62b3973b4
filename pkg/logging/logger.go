package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level уровни логирования
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger интерфейс для структурированного логирования
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// LogError логирует ошибку вместе с её атрибутами
	LogError(err error, msg string, fields ...Field)

	WithComponent(component string) Logger
	WithFields(fields ...Field) Logger

	SetLevel(level Level)
	IsEnabled(level Level) bool
}

// Field представляет поле лога
type Field struct {
	Key   string
	Value interface{}
}

// Helpers для создания полей
func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value} }
func Any(key string, value interface{}) Field        { return Field{key, value} }
func Err(err error) Field                            { return Field{"error", err} }

// FieldsError ошибка, которая умеет отдавать свои поля для лога
type FieldsError interface {
	error
	LogFields() []Field
}

// ZeroLogger реализация Logger поверх zerolog
type ZeroLogger struct {
	zl    zerolog.Logger
	level *levelBox
}

type levelBox struct {
	mu    sync.RWMutex
	level Level
}

func (b *levelBox) get() Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.level
}

func (b *levelBox) set(l Level) {
	b.mu.Lock()
	b.level = l
	b.mu.Unlock()
}

// New создает logger, пишущий в w в человекочитаемом виде
func New(w io.Writer, level Level) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	zl := zerolog.New(cw).With().Timestamp().Logger().Level(zerolog.TraceLevel)
	return &ZeroLogger{zl: zl, level: &levelBox{level: level}}
}

// NewJSON создает logger с JSON выводом
func NewJSON(w io.Writer, level Level) *ZeroLogger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(zerolog.TraceLevel)
	return &ZeroLogger{zl: zl, level: &levelBox{level: level}}
}

func (l *ZeroLogger) SetLevel(level Level) { l.level.set(level) }

func (l *ZeroLogger) IsEnabled(level Level) bool { return level >= l.level.get() }

func (l *ZeroLogger) WithComponent(component string) Logger {
	return &ZeroLogger{zl: l.zl.With().Str("component", component).Logger(), level: l.level}
}

func (l *ZeroLogger) WithFields(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZeroLogger{zl: ctx.Logger(), level: l.level}
}

func (l *ZeroLogger) Trace(msg string, fields ...Field) { l.log(LevelTrace, msg, fields) }
func (l *ZeroLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *ZeroLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *ZeroLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *ZeroLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *ZeroLogger) LogError(err error, msg string, fields ...Field) {
	if err != nil {
		fields = append(fields, Err(err))
		if fe, ok := err.(FieldsError); ok {
			fields = append(fields, fe.LogFields()...)
		}
	}
	l.log(LevelError, msg, fields)
}

func (l *ZeroLogger) log(level Level, msg string, fields []Field) {
	if !l.IsEnabled(level) {
		return
	}
	ev := l.zl.WithLevel(level.zerolog())
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			ev = ev.AnErr(f.Key, v)
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case time.Duration:
			ev = ev.Dur(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}

// NoOpLogger logger, который ничего не делает
type NoOpLogger struct{}

func (NoOpLogger) Trace(string, ...Field)           {}
func (NoOpLogger) Debug(string, ...Field)           {}
func (NoOpLogger) Info(string, ...Field)            {}
func (NoOpLogger) Warn(string, ...Field)            {}
func (NoOpLogger) Error(string, ...Field)           {}
func (NoOpLogger) LogError(error, string, ...Field) {}
func (n NoOpLogger) WithComponent(string) Logger    { return n }
func (n NoOpLogger) WithFields(...Field) Logger     { return n }
func (NoOpLogger) SetLevel(Level)                   {}
func (NoOpLogger) IsEnabled(Level) bool             { return false }

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NoOpLogger{}
)

// SetDefault устанавливает глобальный logger
func SetDefault(l Logger) {
	if l == nil {
		l = NoOpLogger{}
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default возвращает глобальный logger
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// ParseLevel разбирает имя уровня без учета регистра, неизвестное имя дает LevelInfo
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return LevelWarn
	}
	for l, name := range levelNames {
		if name == s {
			return l
		}
	}
	return LevelInfo
}
