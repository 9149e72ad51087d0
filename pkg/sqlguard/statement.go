// Package sqlguard screens ad hoc SQL before it is sent to a warehouse.
package sqlguard

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyStatement indicates there is nothing to run once whitespace,
	// comments and the terminator are removed.
	ErrEmptyStatement = errors.New("empty SQL statement")
	// ErrMultipleStatements indicates the text holds more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateBracket
	stateLineComment
	stateBlockComment
)

// Normalize returns a single statement with surrounding whitespace and its
// terminating semicolon removed. Semicolons inside string literals, quoted
// identifiers (double quotes, backticks, brackets) and comments are ignored.
// Anything other than whitespace or comments after the first terminator is
// rejected with ErrMultipleStatements.
func Normalize(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyStatement
	}

	end := -1
	state := stateNormal
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch state {
		case stateNormal:
			switch {
			case c == '-' && peek(query, i) == '-':
				state = stateLineComment
				i++
				continue
			case c == '/' && peek(query, i) == '*':
				state = stateBlockComment
				i++
				continue
			case isSpace(c):
				continue
			}
			if end >= 0 {
				return "", ErrMultipleStatements
			}
			switch c {
			case ';':
				end = i
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '`':
				state = stateBacktick
			case '[':
				state = stateBracket
			}
		case stateSingleQuote:
			// '' closes and immediately reopens, which keeps us inside
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateBracket:
			if c == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && peek(query, i) == '/' {
				state = stateNormal
				i++
			}
		}
	}

	if end < 0 {
		return query, nil
	}
	stmt := strings.TrimSpace(query[:end])
	if stmt == "" {
		return "", ErrEmptyStatement
	}
	return stmt, nil
}

func peek(s string, i int) byte {
	if i+1 < len(s) {
		return s[i+1]
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
