package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_NoSecrets(t *testing.T) {
	r := NewRegistry()
	v, err := r.Redact(map[string]any{"password": "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"password": "hunter2"}, v)
}

func TestRedact_String(t *testing.T) {
	r := NewRegistry()
	r.Add("hunter2")

	got, err := r.Redact("svn co --password hunter2 https://example.org")
	require.NoError(t, err)
	assert.Equal(t, "svn co --password <redacted> https://example.org", got)
}

func TestRedact_NestedContainers(t *testing.T) {
	r := NewRegistry()
	r.Add("s3cr3t")

	in := map[string]any{
		"config": map[string]any{
			"password": "s3cr3t",
			"list":     []any{"a", "s3cr3t-ish", 42},
		},
	}
	got, err := r.Redact(in)
	require.NoError(t, err)

	out, ok := got.(map[string]any)
	require.True(t, ok)
	cfg, ok := out["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "<redacted>", cfg["password"])

	list, ok := cfg["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, "a", list[0])
	assert.Equal(t, "<redacted>-ish", list[1])
	assert.Equal(t, 42, list[2])
}

func TestRedact_KeyContainingSecret(t *testing.T) {
	r := NewRegistry()
	r.Add("topsecretkey")

	got, err := r.Redact(map[string]any{"topsecretkey": "value"})
	require.NoError(t, err)
	out := got.(map[string]any)
	_, hasRedactedKey := out["<redacted>"]
	assert.True(t, hasRedactedKey)
}

func TestRedact_IntegerContainingSecretSubstring(t *testing.T) {
	r := NewRegistry()
	r.Add("1234")

	got, err := r.Redact(12345678)
	require.NoError(t, err)
	assert.Equal(t, "<redacted>5678", got)
}

func TestRedact_UnhandledTypeErrors(t *testing.T) {
	r := NewRegistry()
	r.Add("x")

	type weird struct{ A int }
	_, err := r.Redact(weird{A: 1})
	require.Error(t, err)
}

func TestRedact_EmptySecretIgnored(t *testing.T) {
	r := NewRegistry()
	r.Add("")

	got, err := r.Redact("nothing changes here")
	require.NoError(t, err)
	assert.Equal(t, "nothing changes here", got)
}
