package framework

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type prefixedLogger struct {
	base   Logger
	prefix string
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf("%s%s", p.prefix, fmt.Sprintf(message, args...))
}

// LoggerWithPrefix returns a Logger that prepends a fixed string to every message.
func LoggerWithPrefix(base Logger, prefix string) Logger {
	if base == nil {
		return NullLogger()
	}
	return prefixedLogger{base: base, prefix: prefix}
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger accumulates timestamped messages. It is safe for concurrent use, since
// stream receive loops may write to it while the check that owns it is running.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

// Println allows a CapturingLogger to be used as an ldlog.BaseLogger.
func (l *CapturingLogger) Println(values ...interface{}) {
	l.Printf("%s", strings.TrimSuffix(fmt.Sprintln(values...), "\n"))
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

type baseLoggerAdapter struct {
	target Logger
}

func (a baseLoggerAdapter) Println(values ...interface{}) {
	a.target.Printf("%s", strings.TrimSuffix(fmt.Sprintln(values...), "\n"))
}

func (a baseLoggerAdapter) Printf(format string, values ...interface{}) {
	a.target.Printf(format, values...)
}

// NewLoggers builds an ldlog.Loggers that writes everything at or above minLevel to target.
func NewLoggers(target Logger, minLevel ldlog.LogLevel) ldlog.Loggers {
	if target == nil {
		return ldlog.NewDisabledLoggers()
	}
	loggers := ldlog.Loggers{}
	loggers.SetBaseLogger(baseLoggerAdapter{target: target})
	loggers.SetMinLevel(minLevel)
	return loggers
}
