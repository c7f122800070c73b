// Package field adapts raw input events from form primitives (text, select,
// checkbox groups, file pickers, dates, availability grids) into normalised
// Change values. Every primitive funnels through a Sink so state holders stay
// agnostic of the widget that produced a change.
package field

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the input primitives a field can be rendered with.
type Kind string

const (
	KindText          Kind = "text"
	KindTextArea      Kind = "textarea"
	KindNumber        Kind = "number"
	KindSelect        Kind = "select"
	KindCheckboxGroup Kind = "checkbox-group"
	KindBoolean       Kind = "boolean"
	KindFile          Kind = "file"
	KindDate          Kind = "date"
	KindTime          Kind = "time"
	KindGrid          Kind = "grid"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindTextArea, KindNumber, KindSelect, KindCheckboxGroup,
		KindBoolean, KindFile, KindDate, KindTime, KindGrid:
		return true
	default:
		return false
	}
}

const (
	// DateLayout is the wire format for date fields.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire format for time fields and grid hours.
	TimeLayout = "15:04"
)

// ErrInvalidInput reports raw input that cannot be normalised for its kind.
var ErrInvalidInput = errors.New("field: invalid input")

// Change is the single mutation request every primitive emits.
type Change struct {
	Name  string
	Value any
}

// Reader exposes read access to the current values.
type Reader interface {
	Get(name string, fallback any) any
}

// Sink receives changes. Implementations apply a batch atomically and return
// the resulting snapshot.
type Sink interface {
	Apply(changes ...Change) map[string]any
}

// Store is the combination bindings need for read-modify-write primitives
// such as checkbox groups and grids.
type Store interface {
	Reader
	Sink
}

// Text forwards raw text unchanged. Whitespace is significant while typing.
func Text(name, raw string) Change {
	return Change{Name: name, Value: raw}
}

// Select forwards the chosen option value.
func Select(name string, value any) Change {
	return Change{Name: name, Value: value}
}

// Bool forwards a boolean toggle.
func Bool(name string, value bool) Change {
	return Change{Name: name, Value: value}
}

// Number parses raw as a float. Empty input clears the field.
func Number(name, raw string) (Change, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Change{Name: name}, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Change{}, fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidInput, name, raw)
	}
	return Change{Name: name, Value: f}, nil
}

// Date validates raw against DateLayout. Empty input clears the field.
func Date(name, raw string) (Change, error) {
	return layoutChange(name, raw, DateLayout, "date")
}

// Time validates raw against TimeLayout. Empty input clears the field.
func Time(name, raw string) (Change, error) {
	return layoutChange(name, raw, TimeLayout, "time")
}

func layoutChange(name, raw, layout, label string) (Change, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Change{Name: name}, nil
	}
	if _, err := time.Parse(layout, trimmed); err != nil {
		return Change{}, fmt.Errorf("%w: %s expects a %s (%s), got %q", ErrInvalidInput, name, label, layout, raw)
	}
	return Change{Name: name, Value: trimmed}, nil
}

// FromInput normalises a raw string typed into a primitive of the given kind.
// Kinds with structured values (checkbox groups, files, grids) have their own
// helpers and are rejected here.
func FromInput(kind Kind, name, raw string) (Change, error) {
	switch kind {
	case KindText, KindTextArea, "":
		return Text(name, raw), nil
	case KindSelect:
		return Select(name, strings.TrimSpace(raw)), nil
	case KindNumber:
		return Number(name, raw)
	case KindDate:
		return Date(name, raw)
	case KindTime:
		return Time(name, raw)
	case KindBoolean:
		b, ok := parseYesNo(raw)
		if !ok {
			return Change{}, fmt.Errorf("%w: %s expects yes/no, got %q", ErrInvalidInput, name, raw)
		}
		return Bool(name, b), nil
	default:
		return Change{}, fmt.Errorf("%w: %s kind %q has no text form", ErrInvalidInput, name, kind)
	}
}

func parseYesNo(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1", "on":
		return true, true
	case "n", "no", "false", "0", "off":
		return false, true
	default:
		return false, false
	}
}
