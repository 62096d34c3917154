package internal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Importance string

const (
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
	Raw     Importance = "-"
)

type Logger struct {
	database  LogStore
	location  *time.Location
	debugMode atomic.Bool
	writer    chan *LogEvent
	console   atomic.Pointer[zap.Logger]
	done      chan struct{}
	mutex     sync.RWMutex
	closed    bool
}

type LogEvent struct {
	Importance Importance
	Message    *FeatureLogMessage
}

func NewLogger(location *time.Location) *Logger {
	if location == nil {
		location = time.UTC
	}
	logger := &Logger{
		location: location,
		writer:   make(chan *LogEvent, 100),
		done:     make(chan struct{}),
	}
	logger.console.Store(newConsole(zapcore.InfoLevel))
	go logger.startWriter()
	return logger
}

func newConsole(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	console, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return console
}

func (l *Logger) startWriter() {
	defer close(l.done)
	for event := range l.writer {
		message := event.Message
		messageText := fmt.Sprintf("[%s] %s: %s", message.Subject, message.Feature, message.Text)
		l.logLine(event.Importance, messageText)

		if l.database != nil {
			if err := l.database.WriteLogMessage(message); err != nil {
				l.logLine(Error, fmt.Sprint("write log to database failed: ", err))
			}
		}
	}
}

// SetDebugMode switches the console level; safe while lines are being written
func (l *Logger) SetDebugMode(debugMode bool) {
	level := zapcore.InfoLevel
	if debugMode {
		level = zapcore.DebugLevel
	}
	l.debugMode.Store(debugMode)
	l.console.Store(newConsole(level))
}

func (l *Logger) SetDatabase(database LogStore) {
	l.database = database
}

// Close drains pending lines and flushes the console sink; later lines are dropped
func (l *Logger) Close() {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.closed = true
	close(l.writer)
	l.mutex.Unlock()
	<-l.done
	_ = l.console.Load().Sync()
}

func logTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.logEvent(Info, l.newFeatureLogMessage(feature, id, text))
}

func (l *Logger) logEvent(importance Importance, message *FeatureLogMessage) {
	if message.Subject == "" {
		message.Subject = "*"
	}
	message.Importance = string(importance)
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return
	}
	l.writer <- &LogEvent{
		Importance: importance,
		Message:    message,
	}
}

func (l *Logger) Debug(text string) {
	l.logEvent(Info, l.newFeatureLogMessage("info", "", text))
}

func (l *Logger) Warn(text string) {
	l.logEvent(Warning, l.newFeatureLogMessage("warning", "", text))
}

func (l *Logger) Error(text string, err error) {
	l.logEvent(Error, l.newFeatureLogMessage("error", "", fmt.Sprintf("%s: %s", text, err)))
}

// RawDataEvent records raw traffic such as provider request and response bodies, debug mode only
func (l *Logger) RawDataEvent(direction, data string) {
	if l.debugMode.Load() {
		l.logEvent(Raw, l.newFeatureLogMessage("raw", "", fmt.Sprintf("%s: %s", direction, data)))
	}
}

func (l *Logger) logLine(importance Importance, text string) {
	if importance == Info && l.database != nil {
		return
	}
	console := l.console.Load()
	switch importance {
	case Warning:
		console.Warn(text)
	case Error:
		console.Error(text)
	case Raw:
		console.Debug(text)
	default:
		console.Info(text)
	}
}

func (l *Logger) newFeatureLogMessage(feature, id, text string) *FeatureLogMessage {
	now := time.Now()
	return &FeatureLogMessage{
		Time:      logTime(now.In(l.location)),
		TimeStamp: now.UTC(),
		Text:      text,
		Feature:   feature,
		Subject:   id,
	}
}
