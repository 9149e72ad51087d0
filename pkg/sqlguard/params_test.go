package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenParams(t *testing.T) {
	injected := "' OR '1'='1"
	tests := []struct {
		name      string
		params    []any
		positions []int
	}{
		{"nil", nil, nil},
		{"clean strings", []any{"12345", "user@example.com", "2024-01-15", "laptop computers"}, nil},
		{"non strings", []any{100, 99.95, true, nil}, nil},
		{"quote injection", []any{"ok", "' OR '1'='1"}, []int{2}},
		{"drop table", []any{"'; DROP TABLE users--"}, []int{1}},
		{"union select", []any{1, "1 UNION SELECT * FROM passwords"}, []int{2}},
		{"string pointer", []any{&injected}, []int{1}},
		{"nil string pointer", []any{(*string)(nil)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := ScreenParams(tt.params)
			var positions []int
			for _, f := range findings {
				positions = append(positions, f.Position)
				assert.NotEmpty(t, f.Fingerprint)
			}
			assert.Equal(t, tt.positions, positions)
		})
	}
}

func TestCheckParams(t *testing.T) {
	require.NoError(t, CheckParams([]any{"shipped", 3}))

	err := CheckParams([]any{"shipped", "admin'--"})
	require.ErrorIs(t, err, ErrSuspiciousParameter)
	assert.Contains(t, err.Error(), "parameter 2")
}
