// Package terminal runs a wizard session interactively in a terminal. Prompts
// go through a PromptDriver so the runner can be exercised without a TTY.
package terminal

import (
	"context"
	"errors"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("terminal: aborted")

// ErrCancelled is returned when the user declines to submit.
var ErrCancelled = errors.New("terminal: cancelled")

// PromptDriver asks one question at a time. Select returns the chosen
// index into Options; MultiSelect returns the chosen indices in option order.
type PromptDriver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
	MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error)
	TextArea(ctx context.Context, cfg TextAreaConfig) (string, error)
	Info(ctx context.Context, msg string) error
}

// InputConfig describes a single-line question.
type InputConfig struct {
	Message string
	Default string
	Help    string
	// Validator rejects an answer; the prompt is repeated with its message.
	Validator func(string) error
}

type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig is shared by Select and MultiSelect. Out of range defaults
// are ignored.
type SelectConfig struct {
	Message      string
	Options      []string
	Help         string
	DefaultIndex int
	Defaults     []int
	PageSize     int
}

// TextAreaConfig describes a free-text answer spanning several lines.
type TextAreaConfig struct {
	Message string
	Default string
	Help    string
}

// validIndices keeps the indices that address options.
func validIndices(options []string, indices []int) []int {
	var kept []int
	for _, i := range indices {
		if i >= 0 && i < len(options) {
			kept = append(kept, i)
		}
	}
	return kept
}
