package debug

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalQuiet := QuietMode
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		QuietMode = originalQuiet
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

func TestSetQuietMode(t *testing.T) {
	defer saveAndRestoreState()()

	SetQuietMode(true)
	assert.True(t, QuietMode)

	SetQuietMode(false)
	assert.False(t, QuietMode)
}

func TestEnabled(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "false"
	QuietMode = false
	assert.False(t, Enabled())

	EnableDebug = "true"
	QuietMode = false
	assert.True(t, Enabled())

	// Quiet mode always wins, even if the build flag says debug.
	QuietMode = true
	assert.False(t, Enabled())

	EnableDebug = "invalid"
	QuietMode = false
	assert.False(t, Enabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "true"
	QuietMode = false
	Log("TEST", "hello %s", "world")

	output := buf.String()
	assert.Contains(t, output, "[DEBUG:TEST]")
	assert.Contains(t, output, "hello world")
}

func TestLogQuietModeSuppressesOutput(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "true"
	QuietMode = true
	Log("TEST", "should not appear")

	assert.Empty(t, buf.String())
}

func TestStageHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	QuietMode = false

	tests := []struct {
		name    string
		logFunc func(string, ...interface{})
		prefix  string
	}{
		{"LogCapture", LogCapture, "[DEBUG:CAPTURE]"},
		{"LogIndex", LogIndex, "[DEBUG:INDEX]"},
		{"LogWrite", LogWrite, "[DEBUG:WRITE]"},
		{"LogSearch", LogSearch, "[DEBUG:SEARCH]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetOutput(&buf)
			tt.logFunc("chain %d", 7)
			output := buf.String()
			assert.Contains(t, output, tt.prefix)
			assert.Contains(t, output, "chain 7")
		})
	}
}

func TestFatalReturnsErrorAndRespectsQuietMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	QuietMode = false
	err := Fatal("writer stage: %s", "catalog unreachable")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fatal error: writer stage: catalog unreachable")
	assert.Contains(t, buf.String(), "[FATAL]")

	buf.Reset()
	QuietMode = true
	err = Fatal("another error")
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestCatastrophicErrorRespectsQuietMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	QuietMode = false
	CatastrophicError("system failure: %s", "disk full")
	assert.Contains(t, buf.String(), "[CATASTROPHIC]")
	assert.Contains(t, buf.String(), "system failure: disk full")

	buf.Reset()
	QuietMode = true
	CatastrophicError("should not appear")
	assert.Empty(t, buf.String())
}

func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "true"
	QuietMode = false

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			Log("CONCURRENT", "message from goroutine %d", id)
			LogSearch("search from goroutine %d", id)
			LogIndex("index from goroutine %d", id)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetOutput(nil)
	EnableDebug = "true"
	QuietMode = false

	Log("TEST", "test %s", "message")
	LogSearch("test %s", "message")
	LogIndex("test %s", "message")
	_ = Fatal("test %s", "message")
	CatastrophicError("test %s", "message")
}

func TestInitLogFile(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitLogFile()
	assert.NoError(t, err)
	assert.NotEmpty(t, logPath)

	_, err = os.Stat(logPath)
	assert.NoError(t, err)

	EnableDebug = "true"
	QuietMode = false
	LogCapture("test log message")

	err = CloseLogFile()
	assert.NoError(t, err)

	content, err := os.ReadFile(logPath)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "test log message")

	os.Remove(logPath)
}
