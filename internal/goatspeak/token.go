package goatspeak

import "fmt"

// TokenType classifies a lexeme.
type TokenType int

const (
	TokenAction      TokenType = iota // select, scrape, extract, output
	TokenConditional                  // if, in
	TokenKeyword                      // position
	TokenOperator                     // =, !=
	TokenNegation                     // not
	TokenNumber                       // decimal integer
	TokenString                       // quoted literal, quotes stripped
	TokenIdentifier                   // tag, field or attribute reference
	TokenFlag                         // --name
	TokenSemicolon                    // ;
	TokenEOF
)

// String returns the name used in error messages.
func (t TokenType) String() string {
	switch t {
	case TokenAction:
		return "action"
	case TokenConditional:
		return "conditional"
	case TokenKeyword:
		return "keyword"
	case TokenOperator:
		return "operator"
	case TokenNegation:
		return "negation"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdentifier:
		return "identifier"
	case TokenFlag:
		return "flag"
	case TokenSemicolon:
		return "';'"
	case TokenEOF:
		return "end of input"
	default:
		return "unknown"
	}
}

// Pos is a location in the query text. Line and Column are 1-based.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single classified lexeme. Keyword values are lower-cased;
// identifiers and strings keep their original case.
type Token struct {
	Type  TokenType `json:"type"`
	Value string    `json:"value"`
	Pos   Pos       `json:"pos"`
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return fmt.Sprintf("Token(%s at %s)", t.Type, t.Pos)
	}
	return fmt.Sprintf("Token(%s %q at %s)", t.Type, t.Value, t.Pos)
}

var (
	actions      = map[string]bool{"select": true, "scrape": true, "extract": true, "output": true}
	conditionals = map[string]bool{"if": true, "in": true}
	keywords     = map[string]bool{"position": true}
	negations    = map[string]bool{"not": true}
)
