// Package review renders the read-only summary shown before a wizard is
// submitted.
package review

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/predicate"
	"github.com/goliatone/go-formflow/pkg/predicate/expr"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

// Blank is shown for fields without a value.
const Blank = "-"

// Entry is one answered (or unanswered) field.
type Entry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
	Blank bool   `json:"blank"`
}

// Section groups the entries of one visible step.
type Section struct {
	Index   int     `json:"index"`
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
	Issues  int     `json:"issues"`
}

// Summary is the data handed to the summary template.
type Summary struct {
	WizardID string    `json:"wizard"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Build collects every visible field of every visible step.
func Build(s *wizard.Session) Summary {
	def := s.Definition()
	ctx := s.State().Context()
	summary := Summary{WizardID: def.ID, Title: def.Title}
	if summary.Title == "" {
		summary.Title = def.ID
	}

	for _, idx := range s.VisibleSteps() {
		step := def.Steps[idx]
		section := Section{
			Index:  idx + 1,
			ID:     step.ID,
			Title:  step.Title,
			Issues: len(s.Issues(idx)),
		}
		if section.Title == "" {
			section.Title = step.ID
		}
		for _, fd := range s.VisibleFields(idx) {
			value := Display(fd, ctx)
			section.Entries = append(section.Entries, Entry{
				Name:  fd.Name,
				Label: fd.DisplayLabel(),
				Value: value,
				Blank: value == Blank,
			})
		}
		summary.Sections = append(summary.Sections, section)
	}
	return summary
}

// Display formats the value of fd for humans.
func Display(fd wizard.FieldDescriptor, ctx predicate.Context) string {
	value, _ := expr.Lookup(ctx, fd.Name)

	var out string
	switch fd.Kind {
	case field.KindFile:
		out = fileDisplay(fd.Name, ctx.Values, value)
	case field.KindGrid:
		if len(fd.Slots) > 0 {
			out = slotDisplay(fd, value)
		} else {
			out = weekDisplay(fd, value)
		}
	case field.KindBoolean:
		out = boolDisplay(value)
	case field.KindSelect, field.KindCheckboxGroup:
		members := field.Members(value)
		labels := make([]string, 0, len(members))
		for _, m := range members {
			labels = append(labels, optionLabel(fd.Options, m))
		}
		out = strings.Join(labels, ", ")
	default:
		out = scalar(value)
	}
	if strings.TrimSpace(out) == "" {
		return Blank
	}
	return out
}

func fileDisplay(name string, values map[string]any, value any) string {
	keys := field.KeysFor(name)
	if handle, ok := value.(*field.FileHandle); ok && handle != nil {
		return fmt.Sprintf("%s (%s)", handle.Name, field.FormatSize(handle.Size))
	}
	if v, ok := values[keys.Name].(string); ok && v != "" {
		return v
	}
	if v, ok := values[keys.URL].(string); ok && v != "" {
		return path.Base(v)
	}
	return ""
}

func weekDisplay(fd wizard.FieldDescriptor, value any) string {
	week := field.WeekGrid{Name: fd.Name}.Decode(value)
	var parts []string
	for _, day := range field.Days {
		if a := week[day]; a.Available {
			parts = append(parts, fmt.Sprintf("%s %s-%s", dayLabel(day), a.Start, a.End))
		}
	}
	return strings.Join(parts, ", ")
}

func slotDisplay(fd wizard.FieldDescriptor, value any) string {
	grid := field.SlotGrid{Name: fd.Name, Slots: fd.Slots}.Decode(value)
	var parts []string
	for _, slot := range fd.Slots {
		var days []string
		for _, day := range field.Days {
			if grid[slot][day] {
				days = append(days, dayLabel(day))
			}
		}
		if len(days) > 0 {
			parts = append(parts, slot+": "+strings.Join(days, " "))
		}
	}
	return strings.Join(parts, "; ")
}

func dayLabel(day field.Day) string {
	s := string(day)
	if len(s) < 3 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:3]
}

func boolDisplay(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true":
			return "Yes"
		case "no", "false":
			return "No"
		}
	}
	return scalar(value)
}

func optionLabel(options []field.Option, value any) string {
	key := fmt.Sprint(value)
	for _, opt := range options {
		if fmt.Sprint(opt.Value) == key {
			if opt.Label != "" {
				return opt.Label
			}
			break
		}
	}
	return scalar(value)
}

func scalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return boolDisplay(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, scalar(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := scalar(v[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
