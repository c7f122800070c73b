package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/lookup"
	"github.com/goliatone/go-formflow/pkg/review"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

// Opener opens a file picked for a file field.
type Opener func(path string) (io.ReadCloser, error)

// Option configures a Runner.
type Option func(*Runner)

// WithPromptDriver overrides the survey driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(r *Runner) {
		if driver != nil {
			r.driver = driver
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReview prints the summary rendered by renderer before asking to submit.
func WithReview(renderer *review.Renderer) Option {
	return func(r *Runner) { r.review = renderer }
}

// WithFiles resolves file-field paths inside fsys instead of the OS.
func WithFiles(fsys fs.FS) Option {
	return func(r *Runner) {
		if fsys == nil {
			return
		}
		r.open = func(path string) (io.ReadCloser, error) {
			return fsys.Open(strings.TrimPrefix(path, "/"))
		}
	}
}

// WithAddressLookup searches places for the address field named in fields
// and fills postcode and coordinates from the picked suggestion. Coordinate
// fields are not prompted. opts tune the binding, e.g. lookup.WithDelay.
func WithAddressLookup(places lookup.Places, fields lookup.AddressFields, opts ...lookup.AddressOption) Option {
	return func(r *Runner) {
		r.places = places
		r.address = fields
		r.lookupOpts = opts
	}
}

// Runner walks a session step by step, prompting for every visible field.
type Runner struct {
	driver  PromptDriver
	logger  *slog.Logger
	review  *review.Renderer
	open    Opener
	places  lookup.Places
	address lookup.AddressFields

	lookupOpts []lookup.AddressOption
}

// New builds a Runner with the survey driver and OS file access.
func New(options ...Option) *Runner {
	r := &Runner{
		driver: NewSurveyDriver(nil),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		address: lookup.DefaultAddressFields,
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

const (
	choiceSubmit = iota
	choiceEdit
	choiceCancel
)

// Run prompts until the session is submitted or the user cancels. When the
// session has no submit handler the validated payload is returned instead.
func (r *Runner) Run(ctx context.Context, s *wizard.Session) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("terminal: session is nil")
	}
	logger := r.logger.With("wizard", s.Definition().ID, "session", s.ID())
	reviewOnly := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, step := s.CurrentStep()

		if !reviewOnly {
			if err := r.info(ctx, stepHeader(s, idx, step)); err != nil {
				return nil, err
			}
			if err := r.promptStep(ctx, s, idx); err != nil {
				return nil, err
			}
		}
		reviewOnly = false

		if !isLastVisible(s, idx) {
			if _, err := s.GoNext(); err != nil {
				var verr *wizard.ValidationError
				if !errors.As(err, &verr) {
					return nil, err
				}
				if err := r.reportIssues(ctx, verr.Issues); err != nil {
					return nil, err
				}
			}
			continue
		}

		if issues := s.Validate(idx); len(issues) > 0 {
			if err := r.reportIssues(ctx, issues); err != nil {
				return nil, err
			}
			continue
		}
		if r.review != nil {
			summary, err := r.review.RenderSession(s)
			if err != nil {
				logger.Warn("review render failed", "error", err)
			} else if err := r.info(ctx, summary); err != nil {
				return nil, err
			}
		}

		choice, err := r.driver.Select(ctx, SelectConfig{
			Message: "Ready to submit?",
			Options: []string{"Submit", "Edit a step", "Cancel"},
		})
		if err != nil {
			return nil, err
		}
		switch choice {
		case choiceSubmit:
			payload, err := s.Submit(ctx)
			if err == nil {
				logger.Info("wizard submitted")
				return payload, nil
			}
			if errors.Is(err, wizard.ErrNoSubmitHandler) {
				return s.Payload(), nil
			}
			var verr *wizard.ValidationError
			if errors.As(err, &verr) {
				if err := r.reportIssues(ctx, verr.Issues); err != nil {
					return nil, err
				}
				r.jumpToIssue(s, verr.Issues)
				continue
			}
			logger.Warn("submit failed", "error", err)
			if err := r.info(ctx, "Could not submit: "+api.UserMessage(err)); err != nil {
				return nil, err
			}
			reviewOnly = true
		case choiceEdit:
			if err := r.chooseStep(ctx, s); err != nil {
				return nil, err
			}
		default:
			return nil, ErrCancelled
		}
	}
}

func (r *Runner) chooseStep(ctx context.Context, s *wizard.Session) error {
	visible := s.VisibleSteps()
	options := make([]string, 0, len(visible))
	current := 0
	for i, idx := range visible {
		options = append(options, stepTitle(s.Definition().Steps[idx]))
		if idx == s.Index() {
			current = i
		}
	}
	choice, err := r.driver.Select(ctx, SelectConfig{
		Message:      "Which step?",
		Options:      options,
		DefaultIndex: current,
	})
	if err != nil {
		return err
	}
	if choice < 0 || choice >= len(visible) {
		return nil
	}
	_, err = s.GoTo(visible[choice])
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		return r.reportIssues(ctx, verr.Issues)
	}
	return err
}

// jumpToIssue moves back to the first step holding an issue.
func (r *Runner) jumpToIssue(s *wizard.Session, issues []wizard.Issue) {
	for _, issue := range issues {
		if idx := s.Definition().StepIndex(issue.Step); idx >= 0 {
			if _, err := s.GoTo(idx); err != nil {
				r.logger.Debug("jump to step failed", "step", issue.Step, "error", err)
			}
			return
		}
	}
}

func (r *Runner) reportIssues(ctx context.Context, issues []wizard.Issue) error {
	for _, issue := range issues {
		if err := r.info(ctx, "! "+issue.Message); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) info(ctx context.Context, msg string) error {
	return r.driver.Info(ctx, msg)
}

func isLastVisible(s *wizard.Session, idx int) bool {
	visible := s.VisibleSteps()
	return len(visible) > 0 && visible[len(visible)-1] == idx
}

func stepHeader(s *wizard.Session, idx int, step wizard.StepDefinition) string {
	visible := s.VisibleSteps()
	pos := 0
	for i, v := range visible {
		if v == idx {
			pos = i + 1
		}
	}
	header := fmt.Sprintf("== %s (%d/%d) ==", stepTitle(step), pos, len(visible))
	if step.Description != "" {
		header += "\n" + step.Description
	}
	return header
}

func stepTitle(step wizard.StepDefinition) string {
	if step.Title != "" {
		return step.Title
	}
	return step.ID
}
