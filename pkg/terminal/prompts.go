package terminal

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/formstate"
	"github.com/goliatone/go-formflow/pkg/lookup"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

// removeFile is typed at a file prompt to clear the current file.
const removeFile = "-"

// promptStep asks for each visible field once. Visibility is re-evaluated
// after every answer so fields revealed by an earlier answer are asked too.
func (r *Runner) promptStep(ctx context.Context, s *wizard.Session, idx int) error {
	asked := make(map[string]bool)
	for {
		var next *wizard.FieldDescriptor
		for _, fd := range s.VisibleFields(idx) {
			if !asked[fd.Name] {
				fd := fd
				next = &fd
				break
			}
		}
		if next == nil {
			return nil
		}
		asked[next.Name] = true
		if r.places != nil && next.Name == r.address.Address {
			asked[r.address.Latitude] = true
			asked[r.address.Longitude] = true
			if err := r.promptAddress(ctx, s.State(), *next); err != nil {
				return err
			}
			continue
		}
		if err := r.promptField(ctx, s.State(), *next); err != nil {
			return err
		}
	}
}

func (r *Runner) promptField(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	switch fd.Kind {
	case field.KindTextArea:
		return r.promptTextArea(ctx, state, fd)
	case field.KindBoolean:
		if len(fd.Options) > 0 {
			return r.promptSelect(ctx, state, fd)
		}
		return r.promptBoolean(ctx, state, fd)
	case field.KindSelect:
		return r.promptSelect(ctx, state, fd)
	case field.KindCheckboxGroup:
		if fd.Multiple {
			return r.promptMulti(ctx, state, fd)
		}
		return r.promptSelect(ctx, state, fd)
	case field.KindFile:
		return r.promptFile(ctx, state, fd)
	case field.KindGrid:
		if len(fd.Slots) > 0 {
			return r.promptSlots(ctx, state, fd)
		}
		return r.promptWeek(ctx, state, fd)
	default:
		return r.promptInput(ctx, state, fd)
	}
}

func message(fd wizard.FieldDescriptor) string {
	label := fd.DisplayLabel()
	if fd.Rules.Required {
		label += " *"
	}
	return label
}

func (r *Runner) promptInput(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	kind := fd.Kind
	raw, err := r.driver.Input(ctx, InputConfig{
		Message: message(fd),
		Default: textValue(state.Get(fd.Name, nil)),
		Help:    inputHelp(fd),
		Validator: func(raw string) error {
			_, err := field.FromInput(kind, fd.Name, raw)
			return err
		},
	})
	if err != nil {
		return err
	}
	change, err := field.FromInput(kind, fd.Name, raw)
	if err != nil {
		return err
	}
	state.Apply(change)
	return nil
}

func inputHelp(fd wizard.FieldDescriptor) string {
	switch fd.Kind {
	case field.KindDate:
		return strings.TrimSpace(fd.Help + " (" + field.DateLayout + ")")
	case field.KindTime:
		return strings.TrimSpace(fd.Help + " (" + field.TimeLayout + ")")
	}
	return fd.Help
}

func (r *Runner) promptTextArea(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	raw, err := r.driver.TextArea(ctx, TextAreaConfig{
		Message: message(fd),
		Default: textValue(state.Get(fd.Name, nil)),
		Help:    fd.Help,
	})
	if err != nil {
		return err
	}
	state.Apply(field.Text(fd.Name, raw))
	return nil
}

func (r *Runner) promptBoolean(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	current, _ := state.Get(fd.Name, false).(bool)
	answer, err := r.driver.Confirm(ctx, ConfirmConfig{
		Message: message(fd),
		Default: current,
		Help:    fd.Help,
	})
	if err != nil {
		return err
	}
	state.Apply(field.Bool(fd.Name, answer))
	return nil
}

func (r *Runner) promptSelect(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	labels := optionLabels(fd.Options)
	if len(labels) == 0 {
		return r.promptInput(ctx, state, fd)
	}
	current := state.Get(fd.Name, nil)
	def := -1
	for i, opt := range fd.Options {
		if current != nil && fmt.Sprint(opt.Value) == fmt.Sprint(current) {
			def = i
		}
	}
	choice, err := r.driver.Select(ctx, SelectConfig{
		Message:      message(fd),
		Options:      labels,
		DefaultIndex: def,
		Help:         fd.Help,
	})
	if err != nil {
		return err
	}
	if choice < 0 || choice >= len(fd.Options) {
		return nil
	}
	state.Apply(field.Select(fd.Name, fd.Options[choice].Value))
	return nil
}

func (r *Runner) promptMulti(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	group := field.CheckboxGroup{Name: fd.Name, Options: fd.Options, Multiple: true}
	current := state.Get(fd.Name, nil)
	var defaults []int
	for i, opt := range fd.Options {
		if group.Selected(current, opt.Value) {
			defaults = append(defaults, i)
		}
	}
	picked, err := r.driver.MultiSelect(ctx, SelectConfig{
		Message:  message(fd),
		Options:  optionLabels(fd.Options),
		Defaults: defaults,
		Help:     fd.Help,
	})
	if err != nil {
		return err
	}
	values := make([]any, 0, len(picked))
	for _, i := range picked {
		if i >= 0 && i < len(fd.Options) {
			values = append(values, fd.Options[i].Value)
		}
	}
	state.Apply(field.Select(fd.Name, values))
	return nil
}

func (r *Runner) promptFile(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	binding := field.FileField{Name: fd.Name, Accept: fd.Accept, MaxSize: fd.MaxSize}
	keys := field.KeysFor(fd.Name)
	current := textValue(state.Get(keys.Name, nil))
	if current == "" {
		current = textValue(state.Get(keys.URL, nil))
	}
	help := "Path to the file. Leave empty to keep the current file, type - to remove it."
	if current != "" {
		help = fmt.Sprintf("Current: %s. %s", current, help)
	}

	for {
		raw, err := r.driver.Input(ctx, InputConfig{Message: message(fd), Help: help})
		if err != nil {
			return err
		}
		path := strings.TrimSpace(raw)
		switch path {
		case "":
			return nil
		case removeFile:
			binding.Remove(state)
			return nil
		}

		if err := r.selectFile(state, binding, path); err != nil {
			var ferr *field.FileError
			if !errors.As(err, &ferr) {
				r.logger.Warn("file open failed", "field", fd.Name, "path", path, "error", err)
			}
			if err := r.info(ctx, "! "+fileMessage(err)); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func (r *Runner) selectFile(state *formstate.State, binding field.FileField, path string) error {
	f, err := r.open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	_, err = binding.Select(state, filepath.Base(path), contentType, f)
	return err
}

func fileMessage(err error) string {
	switch {
	case errors.Is(err, field.ErrFileType):
		return "That file type is not accepted."
	case errors.Is(err, field.ErrFileTooLarge):
		return "That file is too large."
	case errors.Is(err, field.ErrInvalidImage):
		return "That image could not be read."
	default:
		return "Could not open the file: " + err.Error()
	}
}

func (r *Runner) promptWeek(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	grid := field.WeekGrid{Name: fd.Name}
	week := grid.Decode(state.Get(fd.Name, nil))

	var defaults []int
	for i, day := range field.Days {
		if week[day].Available {
			defaults = append(defaults, i)
		}
	}
	picked, err := r.driver.MultiSelect(ctx, SelectConfig{
		Message:  message(fd),
		Options:  dayLabels(),
		Defaults: defaults,
		Help:     fd.Help,
	})
	if err != nil {
		return err
	}
	want := make(map[field.Day]bool, len(picked))
	for _, i := range picked {
		if i >= 0 && i < len(field.Days) {
			want[field.Days[i]] = true
		}
	}
	for _, day := range field.Days {
		if week[day].Available != want[day] {
			grid.ToggleDay(state, day)
		}
	}

	week = grid.Decode(state.Get(fd.Name, nil))
	for _, day := range field.Days {
		entry := week[day]
		if !entry.Available {
			continue
		}
		for {
			raw, err := r.driver.Input(ctx, InputConfig{
				Message:   fmt.Sprintf("Hours on %s", dayLabel(day)),
				Default:   entry.Start + "-" + entry.End,
				Help:      "HH:MM-HH:MM",
				Validator: validateHours,
			})
			if err != nil {
				return err
			}
			start, end, err := splitHours(raw)
			if err == nil {
				_, err = grid.SetHours(state, day, start, end)
			}
			if err == nil {
				break
			}
			if err := r.info(ctx, "! "+err.Error()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) promptSlots(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	grid := field.SlotGrid{Name: fd.Name, Slots: fd.Slots}
	current := grid.Decode(state.Get(fd.Name, nil))
	for _, slot := range fd.Slots {
		var defaults []int
		for i, day := range field.Days {
			if current[slot][day] {
				defaults = append(defaults, i)
			}
		}
		picked, err := r.driver.MultiSelect(ctx, SelectConfig{
			Message:  fmt.Sprintf("%s: %s", fd.DisplayLabel(), slot),
			Options:  dayLabels(),
			Defaults: defaults,
			Help:     fd.Help,
		})
		if err != nil {
			return err
		}
		want := make(map[field.Day]bool, len(picked))
		for _, i := range picked {
			if i >= 0 && i < len(field.Days) {
				want[field.Days[i]] = true
			}
		}
		for _, day := range field.Days {
			if current[slot][day] != want[day] {
				grid.ToggleSlot(state, slot, day)
			}
		}
	}
	return nil
}

// keepTyped is offered after the suggestions.
const keepTyped = "None of these, keep what I typed"

// promptLookupDelay applies when no delay is configured; a prompt submits
// the whole query at once.
const promptLookupDelay = time.Millisecond

func (r *Runner) promptAddress(ctx context.Context, state *formstate.State, fd wizard.FieldDescriptor) error {
	results := make(chan []lookup.Suggestion, 1)
	opts := []lookup.AddressOption{
		lookup.WithFields(r.address),
		lookup.WithDelay(promptLookupDelay),
		lookup.WithLogger(r.logger),
	}
	opts = append(opts, r.lookupOpts...)
	opts = append(opts, lookup.WithSuggestionsHandler(func(s []lookup.Suggestion) {
		select {
		case results <- s:
		default:
		}
	}))
	addr, err := lookup.NewAddress(r.places, state, opts...)
	if err != nil {
		return err
	}
	defer addr.Close()

	raw, err := r.driver.Input(ctx, InputConfig{
		Message: message(fd),
		Default: textValue(state.Get(fd.Name, nil)),
		Help:    fmt.Sprintf("Type at least %d characters to search.", lookup.MinQueryLength),
	})
	if err != nil {
		return err
	}
	query := strings.TrimSpace(raw)
	addr.Input(ctx, query)
	if utf8.RuneCountInString(query) < lookup.MinQueryLength {
		return nil
	}

	var suggestions []lookup.Suggestion
	select {
	case suggestions = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if len(suggestions) == 0 {
		return r.info(ctx, "No matching addresses, keeping what you typed.")
	}

	options := make([]string, 0, len(suggestions)+1)
	for _, s := range suggestions {
		options = append(options, s.Description)
	}
	choice, err := r.driver.Select(ctx, SelectConfig{
		Message:      "Pick the address",
		Options:      append(options, keepTyped),
		DefaultIndex: 0,
	})
	if err != nil {
		return err
	}
	if choice < 0 || choice >= len(suggestions) {
		return nil
	}
	if _, err := addr.Select(ctx, suggestions[choice]); err != nil {
		r.logger.Warn("address details failed", "error", err)
		return r.info(ctx, "! Could not fetch the postcode for that address, please enter it.")
	}
	return nil
}

func validateHours(raw string) error {
	_, _, err := splitHours(raw)
	return err
}

func splitHours(raw string) (string, string, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return "", "", fmt.Errorf("hours must look like 09:00-17:00, got %q", raw)
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	for _, v := range []string{start, end} {
		if _, err := field.Time("hours", v); err != nil || v == "" {
			return "", "", fmt.Errorf("hours must look like 09:00-17:00, got %q", raw)
		}
	}
	return start, end, nil
}

func optionLabels(options []field.Option) []string {
	out := make([]string, 0, len(options))
	for _, opt := range options {
		label := opt.Label
		if label == "" {
			label = fmt.Sprint(opt.Value)
		}
		out = append(out, label)
	}
	return out
}

func dayLabels() []string {
	out := make([]string, 0, len(field.Days))
	for _, day := range field.Days {
		out = append(out, dayLabel(day))
	}
	return out
}

func dayLabel(day field.Day) string {
	s := string(day)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(t)
	}
}
