package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokBool
	tokNull
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokContains
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (k tokenKind) comparison() bool {
	switch k {
	case tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte, tokContains:
		return true
	default:
		return false
	}
}

func (k tokenKind) String() string {
	switch k {
	case tokEq:
		return "=="
	case tokNeq:
		return "!="
	case tokLt:
		return "<"
	case tokLte:
		return "<="
	case tokGt:
		return ">"
	case tokGte:
		return ">="
	case tokContains:
		return "contains"
	case tokAnd:
		return "&&"
	case tokOr:
		return "||"
	case tokNot:
		return "!"
	default:
		return "?"
	}
}

// scan splits a rule into tokens. Quoted strings accept either quote style
// and Go escape sequences.
func scan(input string) ([]token, error) {
	var out []token
	i := 0
	for i < len(input) {
		ch := input[i]
		if isSpace(ch) {
			i++
			continue
		}
		start := i

		switch ch {
		case '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: start})
			i++
			continue
		case ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: start})
			i++
			continue
		case '!':
			if peek(input, i+1) == '=' {
				out = append(out, token{kind: tokNeq, text: "!=", pos: start})
				i += 2
				continue
			}
			out = append(out, token{kind: tokNot, text: "!", pos: start})
			i++
			continue
		case '=':
			if peek(input, i+1) != '=' {
				return nil, fmt.Errorf("predicate/expr: unexpected '=' at %d; use '=='", start)
			}
			out = append(out, token{kind: tokEq, text: "==", pos: start})
			i += 2
			continue
		case '<', '>':
			kind := tokLt
			if ch == '>' {
				kind = tokGt
			}
			if peek(input, i+1) == '=' {
				kind++ // tokLte / tokGte follow their strict forms
				out = append(out, token{kind: kind, text: input[i : i+2], pos: start})
				i += 2
				continue
			}
			out = append(out, token{kind: kind, text: input[i : i+1], pos: start})
			i++
			continue
		case '&', '|':
			if peek(input, i+1) != ch {
				return nil, fmt.Errorf("predicate/expr: unexpected %q at %d; use %q", ch, start, string([]byte{ch, ch}))
			}
			kind := tokAnd
			if ch == '|' {
				kind = tokOr
			}
			out = append(out, token{kind: kind, text: input[i : i+2], pos: start})
			i += 2
			continue
		case '"', '\'':
			value, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokString, text: value, pos: start})
			i = next
			continue
		}

		for i < len(input) && !isDelimiter(input[i]) {
			i++
		}
		word := input[start:i]
		out = append(out, classifyWord(word, start))
	}
	return out, nil
}

func scanString(input string, start int) (string, int, error) {
	quote := input[start]
	i := start + 1
	escaped := false
	for i < len(input) {
		c := input[i]
		i++
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c != quote {
			continue
		}
		body := input[start+1 : i-1]
		if quote == '\'' {
			body = strings.ReplaceAll(body, `\'`, `'`)
			body = strings.ReplaceAll(body, `"`, `\"`)
		}
		value, err := strconv.Unquote(`"` + body + `"`)
		if err != nil {
			return "", 0, fmt.Errorf("predicate/expr: invalid string literal at %d: %w", start, err)
		}
		return value, i, nil
	}
	return "", 0, errors.New("predicate/expr: unterminated string literal")
}

func classifyWord(word string, pos int) token {
	switch strings.ToLower(word) {
	case "true", "false":
		return token{kind: tokBool, text: strings.ToLower(word), pos: pos}
	case "null", "nil":
		return token{kind: tokNull, text: "null", pos: pos}
	case "contains":
		return token{kind: tokContains, text: "contains", pos: pos}
	case "and":
		return token{kind: tokAnd, text: "&&", pos: pos}
	case "or":
		return token{kind: tokOr, text: "||", pos: pos}
	case "not":
		return token{kind: tokNot, text: "!", pos: pos}
	}
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return token{kind: tokNumber, text: word, pos: pos}
	}
	return token{kind: tokIdent, text: word, pos: pos}
}

func peek(input string, i int) byte {
	if i >= len(input) {
		return 0
	}
	return input[i]
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDelimiter(ch byte) bool {
	if isSpace(ch) {
		return true
	}
	switch ch {
	case '(', ')', '!', '=', '<', '>', '&', '|', '"', '\'':
		return true
	default:
		return false
	}
}
