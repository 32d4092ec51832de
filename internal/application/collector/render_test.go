package collector

import (
	"database/sql"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuery(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		params   []any
		expected string
	}{
		{"Integers", "SELECT * FROM t WHERE id = ? AND pct > ?", []any{5, 10}, "SELECT * FROM t WHERE id = '5' AND pct > '10';"},
		{"Literal percent", "50% done ?", []any{"x"}, "50%% done 'x';"},
		{"Percent in value is kept", "SELECT * FROM t WHERE name LIKE ?", []any{"%bob%"}, "SELECT * FROM t WHERE name LIKE '%bob%';"},
		{"No placeholders", "SELECT 1", nil, "SELECT 1;"},
		{"Booleans and nil", "UPDATE t SET a = ?, b = ?, c = ?", []any{true, false, nil}, "UPDATE t SET a = '1', b = '', c = '';"},
		{"Floats", "SELECT ?, ?", []any{1.5, float32(0.25)}, "SELECT '1.5', '0.25';"},
		{"Bytes", "SELECT ?", []any{[]byte("raw")}, "SELECT 'raw';"},
		{"Time", "SELECT ?", []any{time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)}, "SELECT '2024-03-09 14:05:07';"},
		{"Valuer", "SELECT ?", []any{sql.NullInt64{Int64: 42, Valid: true}}, "SELECT '42';"},
		{"Null valuer", "SELECT ?", []any{sql.NullString{}}, "SELECT '';"},
		{"Unicode", "SELECT 'ünï' || ?", []any{"çø"}, "SELECT 'ünï' || 'çø';"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rendered, err := RenderQuery(tc.template, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rendered)
		})
	}
}

func TestRenderQuery_Mismatch(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		params   []any
	}{
		{"Too few parameters", "SELECT * FROM t WHERE a = ? AND b = ?", []any{1}},
		{"Too many parameters", "SELECT * FROM t WHERE a = ?", []any{1, 2}},
		{"Parameters without placeholders", "SELECT 1", []any{"x"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rendered, err := RenderQuery(tc.template, tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSubstitutionMismatch), "error should be a substitution mismatch")
			assert.Equal(t, tc.template, rendered, "the unrendered template should be returned")
		})
	}
}

func TestRenderQuery_Idempotent(t *testing.T) {
	first, err := RenderQuery("SELECT ? FROM dual", []any{"a"})
	require.NoError(t, err)
	second, err := RenderQuery("SELECT ? FROM dual", []any{"a"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
