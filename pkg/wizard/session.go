package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/formstate"
	"github.com/goliatone/go-formflow/pkg/predicate"
)

var (
	// ErrSubmitted is returned by every navigation call after a successful
	// submit.
	ErrSubmitted       = errors.New("wizard: session already submitted")
	ErrSubmitting      = errors.New("wizard: submit in progress")
	ErrNotLastStep     = errors.New("wizard: submit is only allowed from the last step")
	ErrNoNextStep      = errors.New("wizard: no further step")
	ErrStepOutOfRange  = errors.New("wizard: step index out of range")
	ErrStepSkipped     = errors.New("wizard: step is skipped")
	ErrNoVisibleStep   = errors.New("wizard: every step is skipped")
	ErrNoSubmitHandler = errors.New("wizard: no submit handler configured")
)

// SubmitFunc receives the payload of a valid session. Returning an error
// keeps the session open so the user can retry.
type SubmitFunc func(ctx context.Context, s *Session, payload map[string]any) error

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubmit sets the submit handler.
func WithSubmit(fn SubmitFunc) SessionOption {
	return func(s *Session) {
		s.submit = fn
	}
}

// WithInitialValues seeds the FormState, typically from a fetched entity.
func WithInitialValues(values map[string]any) SessionOption {
	return func(s *Session) {
		s.initial = values
	}
}

// WithExtras exposes request-scoped values to rules under `extras.`.
func WithExtras(extras map[string]any) SessionOption {
	return func(s *Session) {
		s.extras = extras
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if strings.TrimSpace(id) != "" {
			s.id = id
		}
	}
}

// Session is one run of a wizard: the cursor, the state and per-step flags.
type Session struct {
	id      string
	def     *Definition
	state   *formstate.State
	logger  *slog.Logger
	submit  SubmitFunc
	initial map[string]any
	extras  map[string]any

	mu         sync.Mutex
	index      int
	dirty      []bool
	issues     [][]Issue
	submitted  bool
	submitting bool

	unsubscribe func()
}

// NewSession compiles def when needed and positions the cursor on the first
// non-skipped step.
func NewSession(def *Definition, opts ...SessionOption) (*Session, error) {
	if err := def.Compile(); err != nil {
		return nil, err
	}
	s := &Session{
		id:     uuid.NewString(),
		def:    def,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	stateOpts := append(def.StateOptions(), formstate.WithExtras(s.extras))
	s.state = formstate.New(s.initial, stateOpts...)
	s.dirty = make([]bool, len(def.Steps))
	s.issues = make([][]Issue, len(def.Steps))
	s.logger = s.logger.With("wizard", def.ID, "session", s.id)

	first, ok := s.nextVisible(s.state.Context(), 0)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoVisibleStep, def.ID)
	}
	s.index = first
	s.unsubscribe = s.state.Subscribe(s.onChange)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Definition returns the wizard definition.
func (s *Session) Definition() *Definition { return s.def }

// State returns the FormState backing the session. Bindings write through it.
func (s *Session) State() *formstate.State { return s.state }

// Close detaches the session from its state.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// CurrentStep returns the active index and step.
func (s *Session) CurrentStep() (int, StepDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.def.Steps[s.index]
}

// Index returns the active step index.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Submitted reports whether the session reached its terminal state.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Dirty reports whether a visible field of step changed since the session
// started.
func (s *Session) Dirty(step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step < 0 || step >= len(s.dirty) {
		return false
	}
	return s.dirty[step]
}

// Issues returns the issues recorded by the last validation of step.
func (s *Session) Issues(step int) []Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step < 0 || step >= len(s.issues) {
		return nil
	}
	return append([]Issue(nil), s.issues[step]...)
}

// HasErrors reports whether step failed its last validation.
func (s *Session) HasErrors(step int) bool {
	return len(s.Issues(step)) > 0
}

// VisibleSteps returns the indexes of steps that are not skipped.
func (s *Session) VisibleSteps() []int {
	ctx := s.state.Context()
	out := make([]int, 0, len(s.def.Steps))
	for i, step := range s.def.Steps {
		if !StepSkipped(step, ctx) {
			out = append(out, i)
		}
	}
	return out
}

// VisibleFields returns the fields of step that are currently shown.
func (s *Session) VisibleFields(step int) []FieldDescriptor {
	if step < 0 || step >= len(s.def.Steps) {
		return nil
	}
	ctx := s.state.Context()
	fields := s.def.Steps[step].Fields
	out := make([]FieldDescriptor, 0, len(fields))
	for _, fd := range fields {
		if FieldVisible(fd, ctx) {
			out = append(out, fd)
		}
	}
	return out
}

// Validate checks the step at index without moving the cursor and records
// the result.
func (s *Session) Validate(step int) []Issue {
	if step < 0 || step >= len(s.def.Steps) {
		return nil
	}
	issues := ValidateStep(s.def.Steps[step], s.state.Context())
	s.mu.Lock()
	s.issues[step] = issues
	s.mu.Unlock()
	return issues
}

// GoNext validates the active step and moves to the next non-skipped step.
// An invalid step leaves the cursor in place and returns *ValidationError.
func (s *Session) GoNext() (int, error) {
	ctx := s.state.Context()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return s.index, err
	}

	issues := ValidateStep(s.def.Steps[s.index], ctx)
	s.issues[s.index] = issues
	if len(issues) > 0 {
		s.logger.Debug("step invalid", "step", s.def.Steps[s.index].ID, "issues", len(issues))
		return s.index, &ValidationError{Issues: issues}
	}

	next, ok := s.nextVisible(ctx, s.index+1)
	if !ok {
		return s.index, ErrNoNextStep
	}
	s.moveTo(next)
	return s.index, nil
}

// GoBack moves to the previous non-skipped step. It never validates; on the
// first visible step it is a no-op.
func (s *Session) GoBack() (int, error) {
	ctx := s.state.Context()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return s.index, err
	}
	if prev, ok := s.prevVisible(ctx, s.index-1); ok {
		s.moveTo(prev)
	}
	return s.index, nil
}

// GoTo jumps to target. Backward jumps are always allowed; forward jumps
// require every non-skipped step before target to be valid.
func (s *Session) GoTo(target int) (int, error) {
	ctx := s.state.Context()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return s.index, err
	}
	if target < 0 || target >= len(s.def.Steps) {
		return s.index, fmt.Errorf("%w: %d", ErrStepOutOfRange, target)
	}
	if StepSkipped(s.def.Steps[target], ctx) {
		return s.index, fmt.Errorf("%w: %s", ErrStepSkipped, s.def.Steps[target].ID)
	}
	if target > s.index {
		var all []Issue
		for i := 0; i < target; i++ {
			step := s.def.Steps[i]
			if StepSkipped(step, ctx) {
				continue
			}
			issues := ValidateStep(step, ctx)
			s.issues[i] = issues
			all = append(all, issues...)
		}
		if len(all) > 0 {
			return s.index, &ValidationError{Issues: all}
		}
	}
	s.moveTo(target)
	return s.index, nil
}

// Payload returns the values to submit. Local previews of file fields are
// dropped since they only exist for display.
func (s *Session) Payload() map[string]any {
	values := s.state.Values()
	for _, step := range s.def.Steps {
		for _, fd := range step.Fields {
			if fd.Kind == field.KindFile {
				delete(values, field.KeysFor(fd.Name).Preview)
			}
		}
	}
	return values
}

// Submit validates every non-skipped step and hands the payload to the
// submit handler. It is only allowed from the last non-skipped step.
func (s *Session) Submit(ctx context.Context) (map[string]any, error) {
	pctx := s.state.Context()

	s.mu.Lock()
	if err := s.guard(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitting
	}
	if last, ok := s.prevVisible(pctx, len(s.def.Steps)-1); !ok || last != s.index {
		s.mu.Unlock()
		return nil, ErrNotLastStep
	}
	var all []Issue
	for i, step := range s.def.Steps {
		if StepSkipped(step, pctx) {
			s.issues[i] = nil
			continue
		}
		issues := ValidateStep(step, pctx)
		s.issues[i] = issues
		all = append(all, issues...)
	}
	if len(all) > 0 {
		s.mu.Unlock()
		return nil, &ValidationError{Issues: all}
	}
	if s.submit == nil {
		s.mu.Unlock()
		return nil, ErrNoSubmitHandler
	}
	s.submitting = true
	s.mu.Unlock()

	payload := s.Payload()
	err := s.submit(ctx, s, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.logger.Warn("submit failed", "error", err)
		return nil, fmt.Errorf("wizard: submit %s: %w", s.def.ID, err)
	}
	s.submitted = true
	s.logger.Info("wizard submitted")
	return payload, nil
}

func (s *Session) guard() error {
	if s.submitted {
		return ErrSubmitted
	}
	return nil
}

func (s *Session) moveTo(index int) {
	if index == s.index {
		return
	}
	s.logger.Debug("step changed", "from", s.def.Steps[s.index].ID, "to", s.def.Steps[index].ID)
	s.index = index
}

func (s *Session) nextVisible(ctx predicate.Context, from int) (int, bool) {
	for i := from; i < len(s.def.Steps); i++ {
		if i >= 0 && !StepSkipped(s.def.Steps[i], ctx) {
			return i, true
		}
	}
	return 0, false
}

func (s *Session) prevVisible(ctx predicate.Context, from int) (int, bool) {
	if from >= len(s.def.Steps) {
		from = len(s.def.Steps) - 1
	}
	for i := from; i >= 0; i-- {
		if !StepSkipped(s.def.Steps[i], ctx) {
			return i, true
		}
	}
	return 0, false
}

// onChange marks dirty steps and moves the cursor off a step that became
// skipped, preferring the next visible step.
func (s *Session) onChange(evt formstate.Event) {
	ctx := predicate.Context{Values: evt.Values, Extras: s.state.Extras()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return
	}
	if !evt.Reset {
		for i, step := range s.def.Steps {
			if s.dirty[i] {
				continue
			}
			for _, fd := range step.Fields {
				if touches(fd.Name, evt.Names) && FieldVisible(fd, ctx) {
					s.dirty[i] = true
					break
				}
			}
		}
	}

	if !StepSkipped(s.def.Steps[s.index], ctx) {
		return
	}
	if next, ok := s.nextVisible(ctx, s.index+1); ok {
		s.moveTo(next)
		return
	}
	if prev, ok := s.prevVisible(ctx, s.index-1); ok {
		s.moveTo(prev)
	}
}

func touches(name string, changed []string) bool {
	keys := field.KeysFor(name)
	for _, c := range changed {
		switch {
		case c == name, c == keys.Preview, c == keys.Name, c == keys.URL:
			return true
		case strings.HasPrefix(c, name+"."), strings.HasPrefix(name, c+"."):
			return true
		}
	}
	return false
}
