// Package predicate defines the boolean rules wizards use to decide whether a
// field is visible, whether a step is skipped and whether a step is valid.
// Rules are evaluated against the current form values plus request-scoped
// extras (tenant, role, feature flags) supplied by the caller.
package predicate

// Context carries the inputs a rule is evaluated against.
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// Predicate reports whether a rule holds for the given context.
type Predicate interface {
	Holds(ctx Context) (bool, error)
}

// Func adapts a plain function into a Predicate.
type Func func(ctx Context) (bool, error)

// Holds delegates to the underlying function.
func (fn Func) Holds(ctx Context) (bool, error) {
	if fn == nil {
		return true, nil
	}
	return fn(ctx)
}

// Always is a predicate that always holds.
var Always Predicate = Func(func(Context) (bool, error) { return true, nil })

// Never is a predicate that never holds.
var Never Predicate = Func(func(Context) (bool, error) { return false, nil })

// Not negates p. A nil predicate is treated as Always, so Not(nil) never holds.
func Not(p Predicate) Predicate {
	return Func(func(ctx Context) (bool, error) {
		ok, err := Eval(p, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// All holds when every predicate holds. Nil entries are ignored.
func All(preds ...Predicate) Predicate {
	return Func(func(ctx Context) (bool, error) {
		for _, p := range preds {
			ok, err := Eval(p, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	})
}

// Eval evaluates p against ctx treating a nil predicate as Always.
func Eval(p Predicate, ctx Context) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.Holds(ctx)
}
