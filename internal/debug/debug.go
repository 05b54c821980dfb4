// Package debug implements pcapdb's leveled debug logging: a mutex-guarded
// writer toggled at build time or by environment variable, with small
// per-stage helpers so call sites read as "what stage logged this" rather
// than "which logger instance was threaded through."
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build flag that can be overridden at build time:
// go build -ldflags "-X github.com/dirtbags/pcapdb/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// QuietMode suppresses all debug output to stdio. pcapdb runs as a
// long-lived daemon, so ordinary operation is quiet unless -debug was
// passed; set by main.
var QuietMode = false

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetQuietMode toggles whether debug output reaches its writer at all.
func SetQuietMode(enabled bool) {
	QuietMode = enabled
}

// SetOutput sets a custom writer for debug output. Pass nil to disable
// debug output entirely (the default until one of SetOutput/InitLogFile
// is called).
func SetOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitLogFile initializes debug logging to a timestamped file under
// os.TempDir()/pcapdb-debug-logs and returns its path. Call CloseLogFile
// when done.
func InitLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "pcapdb-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseLogFile closes the debug log file if one is open.
func CloseLogFile() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// Enabled reports whether debug output should be produced right now.
func Enabled() bool {
	if QuietMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	if v := os.Getenv("PCAPDB_DEBUG"); v == "1" || v == "true" {
		return true
	}
	return false
}

func writer() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log writes a structured debug line tagged with component.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// LogCapture logs a message from the capture stage (§4.B).
func LogCapture(format string, args ...interface{}) { Log("CAPTURE", format, args...) }

// LogIndex logs a message from the indexer stage (§4.D).
func LogIndex(format string, args ...interface{}) { Log("INDEX", format, args...) }

// LogWrite logs a message from the writer stage (§4.E).
func LogWrite(format string, args ...interface{}) { Log("WRITE", format, args...) }

// LogSearch logs a message from the search engine (§4.G-J).
func LogSearch(format string, args ...interface{}) { Log("SEARCH", format, args...) }

// Fatal formats a catastrophic error, logs it, and returns it as an error
// rather than exiting — callers decide whether to abort.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if !QuietMode {
		if w := writer(); w != nil {
			fmt.Fprintf(w, "[FATAL] %s\n", msg)
		}
	}
	return fmt.Errorf("fatal error: %s", msg)
}

// CatastrophicError logs an error that indicates the process should not
// continue, without itself terminating the process.
func CatastrophicError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !QuietMode {
		if w := writer(); w != nil {
			fmt.Fprintf(w, "[CATASTROPHIC] %s\n", msg)
		}
	}
}
