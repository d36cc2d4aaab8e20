package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policies = `
interception:
  - type: orders.Service
    policies:
      - kind: metrics
  - type: orders.Service
    method: Get
    policies:
      - kind: cache
        ttl: 30s
        order: 2
      - kind: circuit_breaker
        failure_threshold: 3
        timeout: 10s
        order: 1
`

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-path", dir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestValidate(t *testing.T) {
	dir := writeConfig(t, policies)

	out, err := run(t, dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 3 declarations")
}

func TestValidate_UnknownKind(t *testing.T) {
	dir := writeConfig(t, `
interception:
  - type: orders.Service
    policies:
      - kind: retry
`)

	_, err := run(t, dir, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
}

func TestChain(t *testing.T) {
	dir := writeConfig(t, policies)

	out, err := run(t, dir, "chain", "orders.Service.Get")
	require.NoError(t, err)

	assert.Contains(t, out, "orders.Service.Get")
	metricsAt := strings.Index(out, "metrics")
	breakerAt := strings.Index(out, "circuit_breaker")
	cacheAt := strings.Index(out, "cache")
	require.NotEqual(t, -1, metricsAt)
	require.NotEqual(t, -1, breakerAt)
	require.NotEqual(t, -1, cacheAt)
	assert.Less(t, metricsAt, breakerAt, "type-level metrics has order 0")
	assert.Less(t, breakerAt, cacheAt, "breaker order 1 runs outside cache order 2")
}

func TestChain_NoPolicies(t *testing.T) {
	dir := writeConfig(t, policies)

	out, err := run(t, dir, "chain", "users.Service.Get")
	require.NoError(t, err)
	assert.Contains(t, out, "users.Service.Get: no policies")
}

func TestChain_RequiresMethod(t *testing.T) {
	dir := writeConfig(t, policies)

	_, err := run(t, dir, "chain")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aspect 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
}
