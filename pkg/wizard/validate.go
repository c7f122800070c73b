package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/predicate"
	"github.com/goliatone/go-formflow/pkg/predicate/expr"
)

// Rule names reported in issues.
const (
	RuleRequired  = "required"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RulePattern   = "pattern"
	RuleType      = "type"
	RuleStep      = "step"
	RuleRuleError = "rule"
)

// Issue is one validation failure.
type Issue struct {
	Step    string `json:"step"`
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError blocks navigation or submission.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "wizard: validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Field != "" {
			parts = append(parts, fmt.Sprintf("%s.%s: %s", issue.Step, issue.Field, issue.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Step, issue.Message))
	}
	return "wizard: validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors groups issue messages by field name. Step-level issues are
// collected under the "__all__" key, matching backend form errors.
func (e *ValidationError) FieldErrors() map[string][]string {
	out := make(map[string][]string)
	if e == nil {
		return out
	}
	for _, issue := range e.Issues {
		key := issue.Field
		if key == "" {
			key = "__all__"
		}
		out[key] = append(out[key], issue.Message)
	}
	return out
}

// FieldVisible reports whether fd is shown for ctx. Rule errors hide the field.
func FieldVisible(fd FieldDescriptor, ctx predicate.Context) bool {
	ok, err := predicate.Eval(fd.Visible, ctx)
	return err == nil && ok
}

// StepSkipped reports whether step is skipped for ctx. A step without a skip
// predicate is never skipped; a failing skip rule leaves the step visible.
func StepSkipped(step StepDefinition, ctx predicate.Context) bool {
	if step.Skip == nil {
		return false
	}
	ok, err := step.Skip.Holds(ctx)
	return err == nil && ok
}

// ValidateStep checks every visible field of step and the step's own
// validity predicate.
func ValidateStep(step StepDefinition, ctx predicate.Context) []Issue {
	var issues []Issue
	for _, fd := range step.Fields {
		if !FieldVisible(fd, ctx) {
			continue
		}
		value, _ := expr.Lookup(ctx, fd.Name)
		if rule, msg, ok := checkField(fd, value, ctx); !ok {
			issues = append(issues, Issue{Step: step.ID, Field: fd.Name, Rule: rule, Message: msg})
		}
	}

	if step.Valid != nil {
		ok, err := step.Valid.Holds(ctx)
		switch {
		case err != nil:
			issues = append(issues, Issue{Step: step.ID, Rule: RuleRuleError, Message: err.Error()})
		case !ok:
			msg := step.ValidMessage
			if msg == "" {
				msg = "this step is incomplete"
			}
			issues = append(issues, Issue{Step: step.ID, Rule: RuleStep, Message: msg})
		}
	}
	return issues
}

func checkField(fd FieldDescriptor, value any, ctx predicate.Context) (string, string, bool) {
	rules := fd.Rules
	label := fd.DisplayLabel()

	if isBlank(fd, value, ctx) {
		if rules.Required {
			return RuleRequired, fmt.Sprintf("%s is required", label), false
		}
		return "", "", true
	}

	switch fd.Kind {
	case field.KindNumber:
		n, ok := toFloat(value)
		if !ok {
			return RuleType, fmt.Sprintf("%s must be a number", label), false
		}
		if rules.Min != nil && n < *rules.Min {
			return RuleMin, fmt.Sprintf("%s must be at least %v", label, *rules.Min), false
		}
		if rules.Max != nil && n > *rules.Max {
			return RuleMax, fmt.Sprintf("%s must be at most %v", label, *rules.Max), false
		}
	case field.KindCheckboxGroup:
		if !fd.Multiple {
			break
		}
		count := len(field.Members(value))
		if rules.MinLength != nil && count < *rules.MinLength {
			return RuleMinLength, fmt.Sprintf("select at least %d for %s", *rules.MinLength, label), false
		}
		if rules.MaxLength != nil && count > *rules.MaxLength {
			return RuleMaxLength, fmt.Sprintf("select at most %d for %s", *rules.MaxLength, label), false
		}
	case field.KindText, field.KindTextArea, field.KindSelect, field.KindDate, field.KindTime:
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		length := utf8.RuneCountInString(s)
		if rules.MinLength != nil && length < *rules.MinLength {
			return RuleMinLength, fmt.Sprintf("%s must be at least %d characters", label, *rules.MinLength), false
		}
		if rules.MaxLength != nil && length > *rules.MaxLength {
			return RuleMaxLength, fmt.Sprintf("%s must be at most %d characters", label, *rules.MaxLength), false
		}
		if rules.pattern != nil && !rules.pattern.MatchString(s) {
			return RulePattern, fmt.Sprintf("%s has an invalid format", label), false
		}
	}
	return "", "", true
}

// isBlank decides emptiness per kind. Booleans are only blank when unset so
// an explicit false counts as answered; a file counts as present when a
// persisted URL exists.
func isBlank(fd FieldDescriptor, value any, ctx predicate.Context) bool {
	switch fd.Kind {
	case field.KindFile:
		if value != nil {
			return false
		}
		url, _ := expr.Lookup(ctx, field.KeysFor(fd.Name).URL)
		s, _ := url.(string)
		return strings.TrimSpace(s) == ""
	case field.KindBoolean:
		return value == nil
	case field.KindGrid:
		return !gridHasSelection(value)
	case field.KindCheckboxGroup:
		if fd.Multiple {
			return len(field.Members(value)) == 0
		}
	}
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func gridHasSelection(value any) bool {
	grid, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for _, raw := range grid {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if available, ok := row["available"].(bool); ok {
			if available {
				return true
			}
			continue
		}
		for _, cell := range row {
			if b, ok := cell.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
