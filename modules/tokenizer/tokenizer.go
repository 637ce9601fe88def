// Package tokenizer splits a table line into shell-like words.
//
// Words are separated by runs of spaces and tabs. Outside quotes a backslash
// takes the next character literally. Inside double quotes a backslash only
// escapes '"' and '\'; any other backslash is kept. Single quotes take
// everything literally up to the closing quote.
package tokenizer

import (
	"errors"
	"strings"
)

var (
	ErrUnterminatedDoubleQuote = errors.New("unterminated double quote")
	ErrUnterminatedSingleQuote = errors.New("unterminated single quote")
)

type state int

const (
	stateSeek state = iota
	stateWord
	stateWordEscape
	stateDouble
	stateDoubleEscape
	stateSingle
)

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

// Split tokenizes line. On error no tokens are returned.
func Split(line string) ([]string, error) {
	var (
		tokens []string
		word   strings.Builder
		st     = stateSeek
	)

	emit := func() {
		tokens = append(tokens, word.String())
		word.Reset()
	}

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch st {
		case stateSeek:
			if isBlank(c) {
				continue
			}
			st = stateWord
			fallthrough

		case stateWord:
			switch {
			case isBlank(c):
				emit()
				st = stateSeek
			case c == '\\':
				st = stateWordEscape
			case c == '"':
				st = stateDouble
			case c == '\'':
				st = stateSingle
			default:
				word.WriteByte(c)
			}

		case stateWordEscape:
			word.WriteByte(c)
			st = stateWord

		case stateDouble:
			switch c {
			case '\\':
				st = stateDoubleEscape
			case '"':
				st = stateWord
			default:
				word.WriteByte(c)
			}

		case stateDoubleEscape:
			if c != '"' && c != '\\' {
				word.WriteByte('\\')
			}
			word.WriteByte(c)
			st = stateDouble

		case stateSingle:
			if c == '\'' {
				st = stateWord
				continue
			}
			word.WriteByte(c)
		}
	}

	switch st {
	case stateDouble, stateDoubleEscape:
		return nil, ErrUnterminatedDoubleQuote
	case stateSingle:
		return nil, ErrUnterminatedSingleQuote
	case stateWord:
		emit()
	case stateWordEscape:
		// trailing backslash escapes nothing
		emit()
	}

	return tokens, nil
}
