// Package expr compiles rule strings such as `livesAlone == "no"` or
// `hasPowerOfAttorney && poaType != "health"` into predicates.
//
// Supported forms:
//   - truthiness: `enabled`, `!enabled`
//   - equality: `field == "value"`, `count != 3`, `flag == true`, `x == null`
//   - ordering on numbers: `age >= 18`, `hours < 40`
//   - membership for multi-valued fields: `conditions contains "dementia"`
//   - composition: `&&`, `||`, `!`, parentheses (also `and`, `or`, `not`)
//
// Field names resolve against predicate.Context.Values using dotted paths
// (`address.postcode`, `slots.0.start`); the `extras.` prefix reads from
// predicate.Context.Extras.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/predicate"
)

// Program is a compiled rule. The zero rule (empty string) always holds.
type Program struct {
	source string
	root   node
}

var _ predicate.Predicate = (*Program)(nil)

// Compile parses rule into a Program.
func Compile(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	prog := &Program{source: trimmed}
	if trimmed == "" {
		return prog, nil
	}
	tokens, err := scan(trimmed)
	if err != nil {
		return nil, err
	}
	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}
	prog.root = root
	return prog, nil
}

// MustCompile is like Compile but panics on malformed rules. Intended for
// rules declared as package-level literals.
func MustCompile(rule string) *Program {
	prog, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return prog
}

// Holds evaluates the program against ctx.
func (p *Program) Holds(ctx predicate.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// String returns the normalised rule source.
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Eval compiles and evaluates rule in one call.
func Eval(rule string, ctx predicate.Context) (bool, error) {
	prog, err := Compile(rule)
	if err != nil {
		return false, err
	}
	return prog.Holds(ctx)
}

type node interface {
	eval(ctx predicate.Context) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(ctx predicate.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(ctx)
}

type andNode struct{ left, right node }

func (n andNode) eval(ctx predicate.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(ctx)
}

type notNode struct{ inner node }

func (n notNode) eval(ctx predicate.Context) (bool, error) {
	ok, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type truthyNode struct{ path string }

func (n truthyNode) eval(ctx predicate.Context) (bool, error) {
	value, ok := Lookup(ctx, n.path)
	if !ok {
		return false, nil
	}
	return Truthy(value), nil
}

type compareNode struct {
	path string
	op   tokenKind
	lit  token
}

func (n compareNode) eval(ctx predicate.Context) (bool, error) {
	value, found := Lookup(ctx, n.path)

	if n.op == tokContains {
		return contains(value, n.lit), nil
	}

	switch n.lit.kind {
	case tokNull:
		isNull := !found || value == nil
		return n.equality(isNull)
	case tokBool:
		want := n.lit.text == "true"
		got, _ := toBool(value)
		return n.equality(got == want)
	case tokNumber:
		want, err := strconv.ParseFloat(n.lit.text, 64)
		if err != nil {
			return false, fmt.Errorf("predicate/expr: invalid number %q", n.lit.text)
		}
		got, ok := toNumber(value)
		switch n.op {
		case tokLt:
			return ok && got < want, nil
		case tokLte:
			return ok && got <= want, nil
		case tokGt:
			return ok && got > want, nil
		case tokGte:
			return ok && got >= want, nil
		}
		return n.equality(ok && got == want)
	default:
		return n.equality(toString(value) == n.lit.text)
	}
}

func (n compareNode) equality(equal bool) (bool, error) {
	switch n.op {
	case tokEq:
		return equal, nil
	case tokNeq:
		return !equal, nil
	default:
		return false, fmt.Errorf("predicate/expr: operator %s not supported for %q", n.op, n.lit.text)
	}
}

func contains(value any, lit token) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(v, lit.text)
	case []string:
		for _, item := range v {
			if item == lit.text {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if toString(item) == lit.text {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := v[lit.text]
		return ok
	default:
		return toString(v) == lit.text
	}
}

// Lookup resolves a dotted path in ctx. Exact keys win over traversal so
// flattened names like "cta.headline" still resolve.
func Lookup(ctx predicate.Context, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	if rest, ok := cutPrefixFold(path, "extras."); ok {
		return lookupPath(ctx.Extras, rest)
	}
	return lookupPath(ctx.Values, path)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func lookupPath(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}
	var current any = values
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Truthy mirrors how form values read as "filled in": non-empty strings,
// non-zero numbers, non-empty collections and true.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		b, ok := parseBoolWord(v)
		if ok {
			return b
		}
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		if f, ok := toNumber(v); ok {
			return f != 0
		}
		return true
	}
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		if b, ok := parseBoolWord(v); ok {
			return b, true
		}
		return strings.TrimSpace(v) != "", true
	default:
		return Truthy(v), true
	}
}

// parseBoolWord accepts the yes/no answers radio groups store alongside the
// usual strconv spellings.
func parseBoolWord(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	return b, err == nil
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
