package goatspeak

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the concrete error types below.
var (
	ErrLexical       = errors.New("lexical error")
	ErrSyntax        = errors.New("syntax error")
	ErrConfiguration = errors.New("configuration error")
)

// LexicalError reports query text outside the token grammar.
type LexicalError struct {
	Message string `json:"message"`
	Pos     Pos    `json:"pos"`
	Got     string `json:"got,omitempty"`
}

func (e *LexicalError) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("lexical error at %s: %s (got %q)", e.Pos, e.Message, e.Got)
	}
	return fmt.Sprintf("lexical error at %s: %s", e.Pos, e.Message)
}

func (e *LexicalError) Unwrap() error { return ErrLexical }

// SyntaxError reports a token stream that does not match the grammar.
// Token is the offending token; it is an EOF token for premature ends.
type SyntaxError struct {
	Message  string `json:"message"`
	Token    Token  `json:"token"`
	Expected string `json:"expected,omitempty"`
}

func (e *SyntaxError) Error() string {
	got := e.Token.Value
	if e.Token.Type == TokenEOF {
		got = "end of input"
	}
	if e.Expected != "" {
		return fmt.Sprintf("syntax error at %s: %s (got %q, expected %s)", e.Token.Pos, e.Message, got, e.Expected)
	}
	return fmt.Sprintf("syntax error at %s: %s (got %q)", e.Token.Pos, e.Message, got)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// ConfigurationError reports a condition evaluated without the context it
// needs, such as a POSITION test without a root node.
type ConfigurationError struct {
	Message string `json:"message"`
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
