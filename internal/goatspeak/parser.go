package goatspeak

import (
	"strconv"

	"github.com/scrapegoat/backend/internal/tree"
)

// Compile lexes and parses query text. On error no instructions are
// returned.
func Compile(text string) ([]Instruction, error) {
	tokens, err := Lex(text)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// Parse turns a token stream into an ordered instruction list. The stream
// need not end with an EOF token; one is synthesized past the end.
func Parse(tokens []Token) ([]Instruction, error) {
	p := &parser{tokens: tokens}
	var out []Instruction
	for !p.atEOF() {
		tok := p.peek()
		if tok.Type != TokenAction {
			return nil, p.errorf(tok, "expected statement", "action")
		}
		parse, ok := statementParsers[Action(tok.Value)]
		if !ok {
			return nil, p.errorf(tok, "unknown action", "select, scrape, extract or output")
		}
		inst, err := parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if out == nil {
		out = []Instruction{}
	}
	return out, nil
}

type statementParser func(*parser) (Instruction, error)

var statementParsers map[Action]statementParser

func init() {
	statementParsers = map[Action]statementParser{
		ActionSelect:  (*parser).parseSelection,
		ActionScrape:  (*parser).parseSelection,
		ActionExtract: (*parser).parseExtraction,
		ActionOutput:  (*parser).parseOutput,
	}
}

// Extraction flags.
const (
	FlagNoChildren      = "no-children"
	FlagNoGrandchildren = "no-grandchildren"
)

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	eof := Token{Type: TokenEOF}
	if n := len(p.tokens); n > 0 {
		eof.Pos = p.tokens[n-1].Pos
	}
	return eof
}

func (p *parser) atEOF() bool {
	return p.peek().Type == TokenEOF
}

func (p *parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != typ {
		return tok, p.errorf(tok, "unexpected token", typ.String())
	}
	return p.advance(), nil
}

func (p *parser) errorf(tok Token, msg, expected string) *SyntaxError {
	return &SyntaxError{Message: msg, Token: tok, Expected: expected}
}

func (p *parser) number(tok Token) (int, error) {
	n, err := strconv.Atoi(tok.Value)
	if err != nil {
		return 0, p.errorf(tok, "number out of range", "")
	}
	return n, nil
}

// selection := ("select"|"scrape") NUMBER? IDENTIFIER condition* ";"
func (p *parser) parseSelection() (Instruction, error) {
	action := p.advance()
	sel := &Selection{Action: Action(action.Value), Pos: action.Pos}

	if p.peek().Type == TokenNumber {
		n, err := p.number(p.advance())
		if err != nil {
			return nil, err
		}
		sel.Limit = n
	}

	target, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	sel.TargetTag = target.Value

	for p.peek().Type != TokenSemicolon {
		cond, err := p.parseCondition(sel.TargetTag)
		if err != nil {
			return nil, err
		}
		sel.Conditions = append(sel.Conditions, cond)
	}
	p.advance()
	return sel, nil
}

// condition := "not"? ( "if" IDENTIFIER operator value
//
//	| "in" ( "position" operator NUMBER | IDENTIFIER ) )
func (p *parser) parseCondition(boundTag string) (Condition, error) {
	negated := false
	if p.peek().Type == TokenNegation {
		p.advance()
		negated = true
	}

	tok := p.peek()
	if tok.Type != TokenConditional {
		return nil, p.errorf(tok, "expected condition or ';'", "'if', 'in', 'not' or ';'")
	}
	p.advance()

	switch tok.Value {
	case "if":
		attr, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		op, err := p.expect(TokenOperator)
		if err != nil {
			return nil, err
		}
		val := p.peek()
		switch val.Type {
		case TokenString, TokenIdentifier, TokenNumber:
			p.advance()
		default:
			return nil, p.errorf(val, "expected attribute value", "string, identifier or number")
		}
		return &AttributeCondition{
			Attribute: tree.AttrKey(attr.Value),
			Value:     val.Value,
			BoundTag:  boundTag,
			Negated:   negated || op.Value == "!=",
		}, nil

	default: // "in"
		if p.peek().Type == TokenKeyword {
			p.advance()
			op, err := p.expect(TokenOperator)
			if err != nil {
				return nil, err
			}
			numTok, err := p.expect(TokenNumber)
			if err != nil {
				return nil, err
			}
			n, err := p.number(numTok)
			if err != nil {
				return nil, err
			}
			return &RelationalCondition{
				Kind:     RelationPosition,
				Ordinal:  n,
				BoundTag: boundTag,
				Negated:  negated || op.Value == "!=",
			}, nil
		}
		tag, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		return &RelationalCondition{
			Kind:     RelationAncestor,
			Tag:      tag.Value,
			BoundTag: boundTag,
			Negated:  negated,
		}, nil
	}
}

// extraction := "extract" (IDENTIFIER | STRING | FLAG)* ";"
func (p *parser) parseExtraction() (Instruction, error) {
	action := p.advance()
	ext := &Extraction{Pos: action.Pos}

	for {
		tok := p.peek()
		switch tok.Type {
		case TokenSemicolon:
			p.advance()
			return ext, nil
		case TokenIdentifier, TokenString:
			p.advance()
			ext.Fields = append(ext.Fields, tok.Value)
		case TokenFlag:
			p.advance()
			switch tok.Value {
			case FlagNoChildren:
				ext.Flags.SuppressChildren = true
			case FlagNoGrandchildren:
				ext.Flags.SuppressGrandchildren = true
			default:
				return nil, p.errorf(tok, "unknown extraction flag", "--"+FlagNoChildren+" or --"+FlagNoGrandchildren)
			}
		default:
			return nil, p.errorf(tok, "expected field or ';'", "identifier, string, flag or ';'")
		}
	}
}

// output := "output" IDENTIFIER (FLAG value?)* ";"
func (p *parser) parseOutput() (Instruction, error) {
	action := p.advance()
	fileType, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	out := &Output{FileType: fileType.Value, Flags: make(map[string]string), Pos: action.Pos}

	for {
		tok := p.peek()
		switch tok.Type {
		case TokenSemicolon:
			p.advance()
			return out, nil
		case TokenFlag:
			p.advance()
			switch v := p.peek(); v.Type {
			case TokenString, TokenIdentifier, TokenNumber:
				p.advance()
				out.Flags[tok.Value] = v.Value
			default:
				out.Flags[tok.Value] = "true"
			}
		default:
			return nil, p.errorf(tok, "expected flag or ';'", "flag or ';'")
		}
	}
}
