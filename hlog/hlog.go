/*
Package hlog implements the leveled logger shared by every rank.

Each rank owns a Logger tagged with its rank. Messages are formatted and put
on the global LogChan which a single DumpLog goroutine writes out, so output
from ranks running in one binary does not interleave mid line.
*/
package hlog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Debug levels. Lower levels are included in higher levels.
const (
	None  = 0 // disable all output
	Error = 1 // error messages
	Info  = 2 // info messages
	Msg   = 3 // message trace between ranks
	Debug = 4 // verbose debug info
)

// LogChan carries formatted log lines to DumpLog.
var LogChan = make(chan string, 100)

// guards the close of LogChan against loggers still running
var (
	chanMutex  sync.RWMutex
	chanClosed bool
)

// Logger writes leveled messages for one rank. A nil Logger is silent.
type Logger struct {
	id         int
	debugLevel int
}

// New creates a logger for rank id with the given debug level.
func New(id, level int) *Logger {
	return &Logger{id: id, debugLevel: level}
}

// SetDebug sets the debug message level.
func (l *Logger) SetDebug(level int) {
	l.debugLevel = level
}

// Level returns the debug message level.
func (l *Logger) Level() int {
	if l == nil {
		return None
	}
	return l.debugLevel
}

// Enabled reports whether messages of the given level are written.
func (l *Logger) Enabled(level int) bool {
	return l.Level() >= level
}

// LogError used to log any error messages
func (l *Logger) LogError(f string, a ...interface{}) {
	if l.Enabled(Error) {
		l.Log(f, a...)
	}
}

// LogInfo used to log any info messages
func (l *Logger) LogInfo(f string, a ...interface{}) {
	if l.Enabled(Info) {
		l.Log(f, a...)
	}
}

// LogMsg used to log messages sent to and received from other ranks
func (l *Logger) LogMsg(f string, a ...interface{}) {
	if l.Enabled(Msg) {
		l.Log(f, a...)
	}
}

// LogDebug used to log verbose debug info
func (l *Logger) LogDebug(f string, a ...interface{}) {
	if l.Enabled(Debug) {
		l.Log(f, a...)
	}
}

// Log is called by all of the log functions and formats the messages and puts
// them on the global Log channel
func (l *Logger) Log(f string, a ...interface{}) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf("[%d]-", l.id) + fmt.Sprintf(f, a...) + "\n"
	chanMutex.RLock()
	defer chanMutex.RUnlock()
	if chanClosed {
		return
	}
	LogChan <- msg
}

// CloseLog closes LogChan so DumpLog returns once it has written every
// pending line. Lines logged afterwards are dropped.
func CloseLog() {
	chanMutex.Lock()
	defer chanMutex.Unlock()
	if !chanClosed {
		chanClosed = true
		close(LogChan)
	}
}

// DumpLog writes log lines to stdout until LogChan is closed.
func DumpLog() {
	DumpLogTo(os.Stdout)
}

// DumpLogTo writes log lines to w until LogChan is closed.
func DumpLogTo(w io.Writer) {
	for s := range LogChan {
		fmt.Fprint(w, s)
	}
}
