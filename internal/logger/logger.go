package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	threshold atomic.Int32

	out    = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	errOut = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	debugTag = color.New(color.FgCyan).SprintFunc()
	infoTag  = color.New(color.FgGreen).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

func init() {
	threshold.Store(int32(LevelInfo))
}

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	threshold.Store(int32(l))
}

func SetColor(enabled bool) {
	color.NoColor = !enabled
}

func Enabled(l Level) bool {
	return int32(l) >= threshold.Load()
}

func Debug(format string, v ...interface{}) {
	if !Enabled(LevelDebug) {
		return
	}
	out.Printf("%s %s", debugTag("[DEBUG]"), fmt.Sprintf(format, v...))
}

func Info(format string, v ...interface{}) {
	if !Enabled(LevelInfo) {
		return
	}
	out.Printf("%s %s", infoTag("[INFO]"), fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	if !Enabled(LevelWarn) {
		return
	}
	out.Printf("%s %s", warnTag("[WARN]"), fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	if !Enabled(LevelError) {
		return
	}
	errOut.Printf("%s %s", errorTag("[ERROR]"), fmt.Sprintf(format, v...))
}

// Fatal logs and exits. Only main should call it.
func Fatal(format string, v ...interface{}) {
	errOut.Printf("%s %s", errorTag("[FATAL]"), fmt.Sprintf(format, v...))
	os.Exit(1)
}
