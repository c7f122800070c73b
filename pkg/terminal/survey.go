package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	surveyterm "github.com/AlecAivazis/survey/v2/terminal"
)

// surveyPrompts renders prompts with survey on the process TTY.
type surveyPrompts struct {
	info io.Writer
}

// NewSurveyDriver returns the survey-backed driver. Info lines are written
// to out, or stdout when out is nil.
func NewSurveyDriver(out io.Writer) PromptDriver {
	if out == nil {
		out = os.Stdout
	}
	return surveyPrompts{info: out}
}

// ask runs one survey prompt into a T. Interrupts map to ErrAborted.
func ask[T any](ctx context.Context, p survey.Prompt, opts ...survey.AskOpt) (T, error) {
	var answer T
	if err := ctx.Err(); err != nil {
		return answer, err
	}
	if err := survey.AskOne(p, &answer, opts...); err != nil {
		var zero T
		if errors.Is(err, surveyterm.InterruptErr) {
			return zero, ErrAborted
		}
		return zero, err
	}
	return answer, nil
}

func pageSize(n int) []survey.AskOpt {
	if n <= 0 {
		return nil
	}
	return []survey.AskOpt{survey.WithPageSize(n)}
}

func (s surveyPrompts) Input(ctx context.Context, cfg InputConfig) (string, error) {
	var opts []survey.AskOpt
	if check := cfg.Validator; check != nil {
		opts = append(opts, survey.WithValidator(func(ans any) error {
			text, _ := ans.(string)
			return check(text)
		}))
	}
	return ask[string](ctx, &survey.Input{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help}, opts...)
}

func (s surveyPrompts) Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error) {
	return ask[bool](ctx, &survey.Confirm{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help})
}

func (s surveyPrompts) TextArea(ctx context.Context, cfg TextAreaConfig) (string, error) {
	return ask[string](ctx, &survey.Multiline{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help})
}

// Select and MultiSelect answer into ints; survey writes the option index.
func (s surveyPrompts) Select(ctx context.Context, cfg SelectConfig) (int, error) {
	p := &survey.Select{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help}
	if def := validIndices(cfg.Options, []int{cfg.DefaultIndex}); len(def) == 1 {
		p.Default = cfg.Options[def[0]]
	}
	return ask[int](ctx, p, pageSize(cfg.PageSize)...)
}

func (s surveyPrompts) MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error) {
	p := &survey.MultiSelect{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help}
	if defs := validIndices(cfg.Options, cfg.Defaults); len(defs) > 0 {
		picked := make([]string, len(defs))
		for i, idx := range defs {
			picked[i] = cfg.Options[idx]
		}
		p.Default = picked
	}
	return ask[[]int](ctx, p, pageSize(cfg.PageSize)...)
}

func (s surveyPrompts) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.info, msg)
	return err
}
