package dsl

import (
	"strings"
	"unicode"
)

type tokenType int

const (
	tokenWord tokenType = iota
	tokenString
)

// Token is one lexical unit of a command line.
type Token struct {
	Type tokenType
	// Text is the raw word, or the string contents with quotes removed.
	Text string
	Pos  int
}

// Quoted reports whether the token came from a quoted string.
func (t Token) Quoted() bool {
	return t.Type == tokenString
}

// keyword returns the lower-cased word, or "" for quoted strings.
func (t Token) keyword() string {
	if t.Type != tokenWord {
		return ""
	}
	return strings.ToLower(t.Text)
}

func lex(input string) ([]Token, error) {
	var tokens []Token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				b.WriteRune(c)
				i++
			}
			if !closed {
				return nil, &SyntaxError{Input: input, Pos: start, Reason: "unterminated string"}
			}
			tokens = append(tokens, Token{Type: tokenString, Text: b.String(), Pos: start})
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '"' {
				i++
			}
			tokens = append(tokens, Token{Type: tokenWord, Text: string(runes[start:i]), Pos: start})
		}
	}
	return tokens, nil
}
