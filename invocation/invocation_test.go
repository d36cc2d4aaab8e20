package invocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
)

var get = intercept.Method{Type: "orders.Service", Name: "Get"}

func newLogger(t *testing.T, level string) (clog.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := clog.New(&clog.Config{Level: level, Format: "json", Output: "stdout"}, clog.WithWriter(buf))
	require.NoError(t, err)
	return logger, buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func invoke(t *testing.T, cfg *Config, logger clog.Logger, fail error) error {
	t.Helper()
	catalog := intercept.NewCatalog().DeclareMethod(get, cfg)
	p := intercept.NewPipeline(catalog, []intercept.Interceptor{New(catalog, WithLogger(logger))})
	_, err := p.Invoke(context.Background(), intercept.Call{
		Method: get,
		Args:   []any{42, nil, "eu"},
		Fn: func(context.Context, []any) (any, error) {
			return "order", fail
		},
	})
	return err
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "orders.Service.Get()", Signature(get, nil, true))
	assert.Equal(t, "orders.Service.Get(42, <nil>, eu)", Signature(get, []any{42, nil, "eu"}, true))
	assert.Equal(t, "orders.Service.Get(int, <nil>, string)", Signature(get, []any{42, nil, "eu"}, false))
}

func TestInvocation_LogsStartAndCompletion(t *testing.T) {
	logger, buf := newLogger(t, "debug")
	cfg := NewConfig()
	cfg.EvaluateArguments = true

	require.NoError(t, invoke(t, cfg, logger, nil))

	lines := records(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "invocation started", lines[0]["msg"])
	assert.Equal(t, "invocation completed", lines[1]["msg"])
	assert.Equal(t, "orders.Service.Get(42, <nil>, eu)", lines[0]["signature"])
	assert.Equal(t, lines[0]["call_id"], lines[1]["call_id"])
	assert.Contains(t, lines[1], "elapsed")
}

func TestInvocation_LogsFailure(t *testing.T) {
	logger, buf := newLogger(t, "debug")
	boom := errors.New("boom")

	err := invoke(t, NewConfig(), logger, boom)
	assert.Same(t, boom, err)

	lines := records(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "invocation failed", lines[1]["msg"])
	assert.Equal(t, "orders.Service.Get(int, <nil>, string)", lines[1]["signature"])
}

func TestInvocation_NotInstrumented(t *testing.T) {
	logger, buf := newLogger(t, "debug")
	cfg := NewConfig()
	cfg.Instrument = false

	require.NoError(t, invoke(t, cfg, logger, nil))
	lines := records(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "invocation started", lines[0]["msg"])
}

func TestInvocation_LevelDisabled(t *testing.T) {
	logger, buf := newLogger(t, "info")

	require.NoError(t, invoke(t, NewConfig(), logger, nil))
	assert.Empty(t, buf.String())
}
