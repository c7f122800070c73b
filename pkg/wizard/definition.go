// Package wizard sequences the steps of a multi-step form over a FormState.
// Definitions are static per wizard type; a Session carries the cursor, the
// state and the per-step flags of one run.
package wizard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/formstate"
	"github.com/goliatone/go-formflow/pkg/predicate"
	"github.com/goliatone/go-formflow/pkg/predicate/expr"
)

// Rules are the declarative validation constraints of a field.
type Rules struct {
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	pattern *regexp.Regexp
}

// FieldDescriptor describes one input of a step.
type FieldDescriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Label       string         `json:"label,omitempty" yaml:"label,omitempty"`
	Help        string         `json:"help,omitempty" yaml:"help,omitempty"`
	Kind        field.Kind     `json:"kind" yaml:"kind"`
	Multiple    bool           `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Options     []field.Option `json:"options,omitempty" yaml:"options,omitempty"`
	VisibleWhen string         `json:"visibleWhen,omitempty" yaml:"visibleWhen,omitempty"`
	Rules       Rules          `json:"rules,omitempty" yaml:"rules,omitempty"`
	Accept      field.Accept   `json:"accept,omitempty" yaml:"accept,omitempty"`
	MaxSize     int64          `json:"maxSize,omitempty" yaml:"maxSize,omitempty"`
	Slots       []string       `json:"slots,omitempty" yaml:"slots,omitempty"`

	// Visible overrides VisibleWhen when set from Go code.
	Visible predicate.Predicate `json:"-" yaml:"-"`
}

// DisplayLabel returns the label or a humanised name.
func (f FieldDescriptor) DisplayLabel() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return humanize(f.Name)
}

// StepDefinition is one page of a wizard.
type StepDefinition struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldDescriptor `json:"fields,omitempty" yaml:"fields,omitempty"`
	// ValidWhen is an extra rule on top of the field rules.
	ValidWhen    string `json:"validWhen,omitempty" yaml:"validWhen,omitempty"`
	ValidMessage string `json:"validMessage,omitempty" yaml:"validMessage,omitempty"`
	SkipWhen     string `json:"skipWhen,omitempty" yaml:"skipWhen,omitempty"`

	Valid predicate.Predicate `json:"-" yaml:"-"`
	Skip  predicate.Predicate `json:"-" yaml:"-"`
}

// DependencyRule declares fields to clear or set when another field changes.
type DependencyRule struct {
	Field string         `json:"field" yaml:"field"`
	When  string         `json:"when,omitempty" yaml:"when,omitempty"`
	Clear []string       `json:"clear,omitempty" yaml:"clear,omitempty"`
	Set   map[string]any `json:"set,omitempty" yaml:"set,omitempty"`

	when predicate.Predicate
}

// Definition is a complete wizard type.
type Definition struct {
	ID           string           `json:"id" yaml:"id"`
	Title        string           `json:"title,omitempty" yaml:"title,omitempty"`
	Resource     string           `json:"resource,omitempty" yaml:"resource,omitempty"`
	Steps        []StepDefinition `json:"steps" yaml:"steps"`
	Dependencies []DependencyRule `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	compiled bool
}

var (
	ErrNoSteps       = errors.New("wizard: definition has no steps")
	ErrDuplicateStep = errors.New("wizard: duplicate step id")
)

// Compile checks the definition and turns rule strings into predicates.
// Predicates already set from Go code are kept. Compile is idempotent.
func (d *Definition) Compile() error {
	if d == nil {
		return errors.New("wizard: definition is nil")
	}
	if d.compiled {
		return nil
	}
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("wizard: definition id is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSteps, d.ID)
	}

	stepIDs := make(map[string]struct{}, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		if _, dup := stepIDs[step.ID]; dup {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateStep, d.ID, step.ID)
		}
		stepIDs[step.ID] = struct{}{}

		var err error
		if step.Valid, err = compileRule(step.Valid, step.ValidWhen); err != nil {
			return fmt.Errorf("wizard: %s/%s validWhen: %w", d.ID, step.ID, err)
		}
		if step.Skip, err = compileRule(step.Skip, step.SkipWhen); err != nil {
			return fmt.Errorf("wizard: %s/%s skipWhen: %w", d.ID, step.ID, err)
		}

		fieldNames := make(map[string]struct{}, len(step.Fields))
		for j := range step.Fields {
			fd := &step.Fields[j]
			if strings.TrimSpace(fd.Name) == "" {
				return fmt.Errorf("wizard: %s/%s field %d has no name", d.ID, step.ID, j)
			}
			if _, dup := fieldNames[fd.Name]; dup {
				return fmt.Errorf("wizard: %s/%s duplicate field %q", d.ID, step.ID, fd.Name)
			}
			fieldNames[fd.Name] = struct{}{}
			if fd.Kind == "" {
				fd.Kind = field.KindText
			}
			if !fd.Kind.Valid() {
				return fmt.Errorf("wizard: %s/%s field %q has unknown kind %q", d.ID, step.ID, fd.Name, fd.Kind)
			}
			if fd.Visible, err = compileRule(fd.Visible, fd.VisibleWhen); err != nil {
				return fmt.Errorf("wizard: %s/%s field %q visibleWhen: %w", d.ID, step.ID, fd.Name, err)
			}
			if fd.Rules.Pattern != "" {
				re, err := regexp.Compile(fd.Rules.Pattern)
				if err != nil {
					return fmt.Errorf("wizard: %s/%s field %q pattern: %w", d.ID, step.ID, fd.Name, err)
				}
				fd.Rules.pattern = re
			}
		}
	}

	for i := range d.Dependencies {
		dep := &d.Dependencies[i]
		if strings.TrimSpace(dep.Field) == "" {
			return fmt.Errorf("wizard: %s dependency %d has no field", d.ID, i)
		}
		if dep.When == "" {
			continue
		}
		prog, err := expr.Compile(dep.When)
		if err != nil {
			return fmt.Errorf("wizard: %s dependency on %q: %w", d.ID, dep.Field, err)
		}
		dep.when = prog
	}

	d.compiled = true
	return nil
}

// StateOptions returns the FormState options implied by the definition.
func (d *Definition) StateOptions() []formstate.Option {
	if len(d.Dependencies) == 0 {
		return nil
	}
	deps := make([]formstate.Dependency, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		deps = append(deps, formstate.Dependency{
			Field: dep.Field,
			When:  dep.when,
			Clear: d.clearKeys(dep.Clear),
			Set:   dep.Set,
		})
	}
	return []formstate.Option{formstate.WithDependencies(deps...)}
}

// clearKeys widens file fields to their preview, name and url siblings.
func (d *Definition) clearKeys(names []string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		fd, ok := d.Field(name)
		if !ok || fd.Kind != field.KindFile {
			keys = append(keys, name)
			continue
		}
		fk := field.KeysFor(name)
		keys = append(keys, fk.Handle, fk.Preview, fk.Name, fk.URL)
	}
	return keys
}

// StepIndex returns the position of the step with id, or -1.
func (d *Definition) StepIndex(id string) int {
	for i, step := range d.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// Field finds a descriptor by name across all steps.
func (d *Definition) Field(name string) (FieldDescriptor, bool) {
	for _, step := range d.Steps {
		for _, fd := range step.Fields {
			if fd.Name == name {
				return fd, true
			}
		}
	}
	return FieldDescriptor{}, false
}

func compileRule(current predicate.Predicate, rule string) (predicate.Predicate, error) {
	if current != nil || strings.TrimSpace(rule) == "" {
		return current, nil
	}
	prog, err := expr.Compile(rule)
	if err != nil {
		return nil, err
	}
	return prog, nil
}

func humanize(name string) string {
	if name == "" {
		return ""
	}
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
		case i == 0 && r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
