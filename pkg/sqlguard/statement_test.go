package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SingleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"surrounding whitespace", "  SELECT 1 ;  \n", "SELECT 1"},
		{"trailing line comment", "SELECT 1; -- done", "SELECT 1"},
		{"trailing block comment", "SELECT 1; /* done */", "SELECT 1"},
		{"semicolon in string", "SELECT * FROM t WHERE a = 'x;y'", "SELECT * FROM t WHERE a = 'x;y'"},
		{"doubled quote", "SELECT 'O''Brien;';", "SELECT 'O''Brien;'"},
		{"backslash escape", `SELECT 'it\'s;'`, `SELECT 'it\'s;'`},
		{"double quoted identifier", `SELECT "a;b" FROM t`, `SELECT "a;b" FROM t`},
		{"backtick identifier", "SELECT `a;b` FROM `p.d.t`", "SELECT `a;b` FROM `p.d.t`"},
		{"bracket identifier", "SELECT [a;b] FROM [dbo].[t];", "SELECT [a;b] FROM [dbo].[t]"},
		{"semicolon in line comment", "-- note; here\nSELECT 1", "-- note; here\nSELECT 1"},
		{"semicolon in block comment", "SELECT /* ; */ 1", "SELECT /* ; */ 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyStatement},
		{"whitespace", "  \n\t", ErrEmptyStatement},
		{"bare semicolon", " ; ", ErrEmptyStatement},
		{"two statements", "SELECT 1; SELECT 2", ErrMultipleStatements},
		{"two terminators", "SELECT 1;;", ErrMultipleStatements},
		{"statement after comment", "SELECT 1; -- x\nDROP TABLE t", ErrMultipleStatements},
		{"string closed early", "SELECT 'a'; DELETE FROM t", ErrMultipleStatements},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
