package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level, format Format) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	l := New(level)
	l.SetFormat(format)
	l.SetOutput(&stdout, &stderr)
	return l, &stdout, &stderr
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("panic"))
	assert.Equal(t, LevelDebug, ParseLevel("trace"))
	assert.Equal(t, LevelFatal, ParseLevel("Fatal"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat(" JSON "))
	assert.Equal(t, FormatNormal, ParseFormat("text"))
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Error("discarded")
		l.Event("DISCARDED")
		_, _ = l.Writer(LevelError).Write([]byte("line\n"))
	})
}

func TestLogger_Routing(t *testing.T) {
	l, stdout, stderr := newTestLogger(LevelInfo, FormatNormal)

	l.Debug("hidden %d", 1)
	l.Info("hello %s", "world")
	l.Warn("careful")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "hello world")
	assert.NotContains(t, stdout.String(), "careful")
	assert.Contains(t, stderr.String(), "careful")
}

func TestLogger_FileReceivesEverything(t *testing.T) {
	l, stdout, stderr := newTestLogger(LevelDebug, FormatNormal)
	var file bytes.Buffer
	l.SetFile(&file)

	l.Debug("dbg")
	l.Error("bad")

	assert.Contains(t, file.String(), "dbg")
	assert.Contains(t, file.String(), "bad")
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "bad")
}

func TestLogger_JSONEventWithContext(t *testing.T) {
	l, stdout, _ := newTestLogger(LevelError, FormatJSON)

	child := l.With("file", "recorder").With("target", "/tmp/out")
	child.Event("RECORDING START", KV{Key: "channel", Value: "someone"})

	var obj map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &obj))
	assert.Equal(t, "RECORDING START", obj["event"])
	assert.Equal(t, "someone", obj["channel"])
	assert.Equal(t, "recorder", obj["file"])
	assert.Equal(t, "/tmp/out", obj["target"])
	assert.Contains(t, obj, "time")
}

func TestLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	l, stdout, _ := newTestLogger(LevelInfo, FormatJSON)

	_ = l.With("file", "child")
	l.Info("parent")

	assert.NotContains(t, stdout.String(), "child")
}

func TestLogger_Writer(t *testing.T) {
	l, stdout, _ := newTestLogger(LevelDebug, FormatNormal)

	w := l.Writer(LevelDebug)
	_, err := w.Write([]byte("line one\r\nline two\n\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line one")
	assert.Contains(t, lines[1], "line two")
}
