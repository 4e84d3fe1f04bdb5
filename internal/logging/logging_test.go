package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level string) *Logger {
	return &Logger{zl: zerolog.New(buf).Level(parseLevel(level))}
}

func TestNew_DefaultsToInfoJSON(t *testing.T) {
	l := New(Config{})
	require.NotNil(t, l)
}

func TestNew_TextFormat(t *testing.T) {
	l := New(Config{Format: "text"})
	require.NotNil(t, l)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	require.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("info"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestLogger_InfoWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "info")

	l.Info("node started", "node_id", "n1", "op", "vm")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "node started", decoded["message"])
	require.Equal(t, "n1", decoded["node_id"])
	require.Equal(t, "vm", decoded["op"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "warn")

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, "kept")
}

func TestLogger_With_AttachesFieldsToEveryLine(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf, "info")
	scoped := base.With("request_id", "req-1")

	scoped.Info("first")
	scoped.Info("second")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(line, &decoded))
		require.Equal(t, "req-1", decoded["request_id"])
	}
}

func TestLogger_WithRequestAndWithNode(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf, "info")

	base.WithRequest("req-1").WithNode("n1", "vm").Info("node done")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "req-1", decoded["request_id"])
	require.Equal(t, "n1", decoded["node_id"])
	require.Equal(t, "vm", decoded["op"])
}

func TestLogger_ErrorContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "error")

	l.ErrorContext(context.Background(), "scheduling failed", "error", "boom")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "scheduling failed", decoded["message"])
	require.Equal(t, "boom", decoded["error"])
}

func TestIntoAndFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, "info")

	ctx := Into(context.Background(), l)
	got := FromContext(ctx)
	got.Info("via context")

	require.Contains(t, buf.String(), "via context")
}

func TestFromContext_DefaultsWhenAbsent(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
}
