package field

import "fmt"

// Option is a selectable choice in a select or checkbox group.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// CheckboxGroup binds a set of options to one field. In single mode picking
// an option replaces the value; in multiple mode it toggles membership.
type CheckboxGroup struct {
	Name     string
	Options  []Option
	Multiple bool
}

// Toggle computes the change produced by picking option given the current
// value of the field.
func (g CheckboxGroup) Toggle(current, option any) Change {
	if g.Multiple {
		return Change{Name: g.Name, Value: toggleMember(current, option)}
	}
	if g.isSingleBoolean() {
		b, _ := current.(bool)
		return Change{Name: g.Name, Value: !b}
	}
	return Change{Name: g.Name, Value: option}
}

// Pick reads the current value from store, toggles option and forwards the
// change.
func (g CheckboxGroup) Pick(store Store, option any) map[string]any {
	change := g.Toggle(store.Get(g.Name, nil), option)
	return store.Apply(change)
}

// Selected reports whether option is part of value.
func (g CheckboxGroup) Selected(value, option any) bool {
	if g.Multiple {
		key := memberKey(option)
		for _, v := range Members(value) {
			if memberKey(v) == key {
				return true
			}
		}
		return false
	}
	if g.isSingleBoolean() {
		b, _ := value.(bool)
		return b
	}
	return value != nil && memberKey(value) == memberKey(option)
}

// A lone option whose value is true renders as one checkbox bound to a bool.
func (g CheckboxGroup) isSingleBoolean() bool {
	if len(g.Options) != 1 {
		return false
	}
	b, ok := g.Options[0].Value.(bool)
	return ok && b
}

// Members normalises a multi-valued field into a deduplicated ordered slice.
// Scalars are treated as a one-element selection and nil as empty.
func Members(value any) []any {
	var raw []any
	switch v := value.(type) {
	case nil:
		return []any{}
	case []any:
		raw = v
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	default:
		raw = []any{v}
	}

	out := make([]any, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		key := memberKey(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func toggleMember(current, option any) []any {
	members := Members(current)
	key := memberKey(option)
	out := make([]any, 0, len(members)+1)
	removed := false
	for _, m := range members {
		if memberKey(m) == key {
			removed = true
			continue
		}
		out = append(out, m)
	}
	if !removed {
		out = append(out, option)
	}
	return out
}

func memberKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
