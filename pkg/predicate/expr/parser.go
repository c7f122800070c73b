package expr

import (
	"errors"
	"fmt"
)

// grammar:
//
//	or      := and ( "||" and )*
//	and     := unary ( "&&" unary )*
//	unary   := "!" unary | primary
//	primary := "(" or ")" | ident [ op literal ]
type parser struct {
	tokens []token
	pos    int
}

func parse(tokens []token) (node, error) {
	p := &parser{tokens: tokens}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		return nil, fmt.Errorf("predicate/expr: unexpected token %q at %d", tok.text, tok.pos)
	}
	return n, nil
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOr) {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokAnd) {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.accept(tokNot) {
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	if p.accept(tokLParen) {
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, errors.New("predicate/expr: missing closing ')'")
		}
		return inner, nil
	}

	if p.pos >= len(p.tokens) {
		return nil, errors.New("predicate/expr: unexpected end of rule")
	}
	tok := p.tokens[p.pos]
	if tok.kind != tokIdent {
		return nil, fmt.Errorf("predicate/expr: expected field name at %d, got %q", tok.pos, tok.text)
	}
	p.pos++

	if p.pos < len(p.tokens) && p.tokens[p.pos].kind.comparison() {
		op := p.tokens[p.pos].kind
		p.pos++
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		if (op == tokLt || op == tokLte || op == tokGt || op == tokGte) && lit.kind != tokNumber {
			return nil, fmt.Errorf("predicate/expr: operator %s needs a number, got %q", op, lit.text)
		}
		return compareNode{path: tok.text, op: op, lit: lit}, nil
	}
	return truthyNode{path: tok.text}, nil
}

func (p *parser) literal() (token, error) {
	if p.pos >= len(p.tokens) {
		return token{}, errors.New("predicate/expr: missing value after operator")
	}
	tok := p.tokens[p.pos]
	p.pos++
	switch tok.kind {
	case tokString, tokNumber, tokBool, tokNull:
		return tok, nil
	case tokIdent:
		// bare words compare as strings: status == active
		return token{kind: tokString, text: tok.text, pos: tok.pos}, nil
	default:
		return token{}, fmt.Errorf("predicate/expr: expected value at %d, got %q", tok.pos, tok.text)
	}
}

func (p *parser) accept(kind tokenKind) bool {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != kind {
		return false
	}
	p.pos++
	return true
}
