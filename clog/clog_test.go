package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts = append(opts, WithWriter(buf))
	logger, err := New(&Config{Level: level, Format: "json"}, opts...)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: &Config{Level: "info", Format: "console", Output: "stdout"}},
		{name: "nil config", config: nil},
		{name: "invalid level", config: &Config{Level: "invalid"}, wantErr: true},
		{name: "invalid format", config: &Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "ERROR", lines[1]["level"])
}

func TestLogWithDynamicLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	ctx := context.Background()

	assert.False(t, logger.Enabled(ctx, DebugLevel))
	assert.True(t, logger.Enabled(ctx, ErrorLevel))

	logger.Log(ctx, DebugLevel, "dropped")
	logger.Log(ctx, ErrorLevel, "kept", String("k", "v"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "error")
	child := logger.WithNamespace("child")

	logger.Info("before")
	require.NoError(t, logger.SetLevel(DebugLevel))
	child.Info("after")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "after", lines[0]["msg"])
	assert.Error(t, logger.SetLevel(Level(42)))
}

func TestNamespaceAndWith(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug", WithNamespace("svc"))

	logger.WithNamespace("breaker", "orders").With(String("method", "Get")).Info("tripped")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "svc.breaker.orders", lines[0][NamespaceKey])
	assert.Equal(t, "Get", lines[0]["method"])
}

func TestContextFields(t *testing.T) {
	type ctxKey struct{}
	logger, buf := newBufferLogger(t, "debug", WithContextField(ctxKey{}, "request_id"), WithTraceContext())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = context.WithValue(ctx, ctxKey{}, "req-1")

	logger.InfoContext(ctx, "handled")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", lines[0]["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", lines[0]["span_id"])
}

func TestErrorFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")

	logger.Error("failed", Error(errors.New("boom")), Error(nil))
	logger.Error("coded", ErrorWithCode(errors.New("bad"), "E1"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "boom", lines[0]["err_msg"])
	assert.NotContains(t, lines[0], "")
	group, ok := lines[1]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "E1", group["code"])
	assert.Equal(t, "bad", group["msg"])
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "Warn", "error", "fatal"} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("error")))
	assert.Equal(t, ErrorLevel, l)
	text, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), FatalLevel))
	assert.NotPanics(t, func() {
		logger.With(String("a", "b")).WithNamespace("x").Log(context.Background(), ErrorLevel, "nothing")
	})
}
