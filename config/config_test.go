package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("service_name: users-api\ncollect_queries: true\nquery_source: tracing\nstale_span_timeout: 30s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "users-api", cfg.ServiceName)
	assert.True(t, cfg.CollectQueries)
	assert.Equal(t, QuerySourceTracing, cfg.QuerySource)
	assert.Equal(t, 30*time.Second, cfg.StaleSpanTimeout)
	assert.True(t, cfg.Enabled, "unset keys should keep their defaults")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("collect_queries: false\n"), 0o600))

	t.Setenv("API_DEBUGGER_COLLECT_QUERIES", "true")
	t.Setenv("API_DEBUGGER_ENABLED", "false")
	t.Setenv("API_DEBUGGER_MAX_BODY_BYTES", "1024")
	t.Setenv("API_DEBUGGER_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.CollectQueries, "environment should win over the file")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		value    string
		expected error
	}{
		{"Query source", "API_DEBUGGER_QUERY_SOURCE", "carrier-pigeon", ErrInvalidQuerySource},
		{"Log level", "API_DEBUGGER_LOG_LEVEL", "loud", ErrInvalidLogLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.expected), "unexpected error: %v", err)
		})
	}
}
