package goatspeak

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Lex converts query text into tokens terminated by a TokenEOF token.
// Whitespace and commas separate tokens and are otherwise ignored. Any
// other character outside the grammar is reported as a *LexicalError.
func Lex(input string) ([]Token, error) {
	return newLexer(input).lex()
}

type lexer struct {
	input      string
	pos        int
	tokens     []Token
	lineStarts []int // byte offsets where each line starts
}

func newLexer(input string) *lexer {
	l := &lexer{
		input:      input,
		lineStarts: []int{0},
	}
	for i := 0; i < len(input); i++ {
		if input[i] == '\n' {
			l.lineStarts = append(l.lineStarts, i+1)
		}
	}
	return l
}

// posAt converts a byte offset into a Pos with line and column.
func (l *lexer) posAt(offset int) Pos {
	line := sort.Search(len(l.lineStarts), func(i int) bool {
		return l.lineStarts[i] > offset
	})
	return Pos{Offset: offset, Line: line, Column: offset - l.lineStarts[line-1] + 1}
}

func (l *lexer) lex() ([]Token, error) {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == ',':
			l.pos++
		case ch == ';':
			l.emit(TokenSemicolon, ";", l.pos, 1)
		case ch == '=':
			if l.peekAt(1) == '=' {
				l.emit(TokenOperator, "=", l.pos, 2)
			} else {
				l.emit(TokenOperator, "=", l.pos, 1)
			}
		case ch == '!':
			if l.peekAt(1) != '=' {
				return nil, l.errorAt(l.pos, "expected '=' after '!'")
			}
			l.emit(TokenOperator, "!=", l.pos, 2)
		case ch == '"' || ch == '\'':
			if err := l.readString(ch); err != nil {
				return nil, err
			}
		case ch == '-':
			if err := l.readFlag(); err != nil {
				return nil, err
			}
		case isDigit(ch):
			l.readNumber()
		case ch == '@' || isIdentStart(ch):
			if err := l.readWord(); err != nil {
				return nil, err
			}
		default:
			return nil, l.errorAt(l.pos, "unexpected character")
		}
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.posAt(l.pos)})
	return l.tokens, nil
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

// emit appends a token starting at start and advances past width bytes.
func (l *lexer) emit(typ TokenType, val string, start, width int) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: val, Pos: l.posAt(start)})
	l.pos = start + width
}

func (l *lexer) errorAt(offset int, msg string) *LexicalError {
	r, _ := utf8.DecodeRuneInString(l.input[offset:])
	return &LexicalError{Message: msg, Pos: l.posAt(offset), Got: string(r)}
}

// readString reads a single- or double-quoted literal. There are no escapes.
func (l *lexer) readString(quote byte) error {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], quote)
	if end < 0 {
		return &LexicalError{
			Message: "unterminated string literal",
			Pos:     l.posAt(start),
			Got:     l.input[start:],
		}
	}
	val := l.input[start+1 : start+1+end]
	l.emit(TokenString, val, start, end+2)
	return nil
}

// readFlag reads "--name". The name follows identifier rules and is
// lower-cased.
func (l *lexer) readFlag() error {
	start := l.pos
	if l.peekAt(1) != '-' || !isIdentStart(l.peekAt(2)) {
		return l.errorAt(start, "expected flag of the form --name")
	}
	end := start + 2
	for end < len(l.input) && isIdentChar(l.input[end]) {
		end++
	}
	l.emit(TokenFlag, strings.ToLower(l.input[start+2:end]), start, end-start)
	return nil
}

func (l *lexer) readNumber() {
	start := l.pos
	end := start
	for end < len(l.input) && isDigit(l.input[end]) {
		end++
	}
	l.emit(TokenNumber, l.input[start:end], start, end-start)
}

// readWord reads an identifier, optionally "@"-prefixed, and classifies
// bare words against the keyword tables.
func (l *lexer) readWord() error {
	start := l.pos
	end := start
	if l.input[end] == '@' {
		end++
		if end >= len(l.input) || !isIdentStart(l.input[end]) {
			return l.errorAt(start, "expected attribute name after '@'")
		}
	}
	for end < len(l.input) && isIdentChar(l.input[end]) {
		end++
	}
	word := l.input[start:end]
	l.emit(classify(word), normalize(word), start, end-start)
	return nil
}

func classify(word string) TokenType {
	lower := strings.ToLower(word)
	switch {
	case actions[lower]:
		return TokenAction
	case conditionals[lower]:
		return TokenConditional
	case keywords[lower]:
		return TokenKeyword
	case negations[lower]:
		return TokenNegation
	default:
		return TokenIdentifier
	}
}

// normalize lower-cases keywords only.
func normalize(word string) string {
	if classify(word) == TokenIdentifier {
		return word
	}
	return strings.ToLower(word)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '-'
}

// Describe renders tokens one per line, for debugging output.
func Describe(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		fmt.Fprintln(&sb, t.String())
	}
	return sb.String()
}
