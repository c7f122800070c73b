package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/goliatone/go-formflow/pkg/field"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func skipDefinition() *Definition {
	return &Definition{
		ID: "skip-demo",
		Steps: []StepDefinition{
			{ID: "a", Fields: []FieldDescriptor{{Name: "name", Kind: field.KindText, Rules: Rules{Required: true}}}},
			{ID: "b", SkipWhen: "!flag", Fields: []FieldDescriptor{{Name: "detail", Kind: field.KindText}}},
			{ID: "c", Fields: []FieldDescriptor{{Name: "notes", Kind: field.KindTextArea}}},
		},
	}
}

func TestSessionSkipsStepUntilFlagIsSet(t *testing.T) {
	t.Parallel()

	s, err := NewSession(skipDefinition(), WithLogger(slogt.New(t)))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	s.State().Set("name", "Ada")
	if idx, err := s.GoNext(); err != nil || idx != 2 {
		t.Fatalf("GoNext from A with flag false = %d, %v; want 2", idx, err)
	}

	s.State().Set("flag", true)
	if idx, err := s.GoTo(0); err != nil || idx != 0 {
		t.Fatalf("GoTo(0) = %d, %v", idx, err)
	}
	if idx, err := s.GoNext(); err != nil || idx != 1 {
		t.Fatalf("GoNext from A with flag true = %d, %v; want 1", idx, err)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, s.VisibleSteps()); diff != "" {
		t.Fatalf("visible steps mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionGoNextRefusesInvalidStep(t *testing.T) {
	t.Parallel()

	s, err := NewSession(skipDefinition())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	idx, err := s.GoNext()
	if idx != 0 {
		t.Fatalf("cursor moved to %d on invalid step", idx)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	want := []Issue{{Step: "a", Field: "name", Rule: RuleRequired, Message: "Name is required"}}
	if diff := cmp.Diff(want, verr.Issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if !s.HasErrors(0) {
		t.Fatalf("error flag should be recorded for step a")
	}
	if diff := cmp.Diff(map[string][]string{"name": {"Name is required"}}, verr.FieldErrors()); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionActiveStepBecomesSkipped(t *testing.T) {
	t.Parallel()

	s, err := NewSession(skipDefinition(), WithInitialValues(map[string]any{"name": "Ada", "flag": true}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := s.GoNext(); err != nil {
		t.Fatalf("GoNext: %v", err)
	}
	if s.Index() != 1 {
		t.Fatalf("expected to be on step b, got %d", s.Index())
	}

	s.State().Set("flag", false)
	if s.Index() != 2 {
		t.Fatalf("cursor should leave the skipped step, got %d", s.Index())
	}
}

func TestSessionGoToGuardsForwardJumps(t *testing.T) {
	t.Parallel()

	s, err := NewSession(skipDefinition())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var verr *ValidationError
	if _, err := s.GoTo(2); !errors.As(err, &verr) {
		t.Fatalf("forward jump over invalid step should fail, got %v", err)
	}
	if _, err := s.GoTo(1); !errors.Is(err, ErrStepSkipped) {
		t.Fatalf("jump to skipped step should fail, got %v", err)
	}
	if _, err := s.GoTo(9); !errors.Is(err, ErrStepOutOfRange) {
		t.Fatalf("expected ErrStepOutOfRange, got %v", err)
	}

	s.State().Set("name", "Ada")
	if idx, err := s.GoTo(2); err != nil || idx != 2 {
		t.Fatalf("GoTo(2) = %d, %v", idx, err)
	}
	if idx, err := s.GoBack(); err != nil || idx != 0 {
		t.Fatalf("GoBack should skip b and land on a, got %d, %v", idx, err)
	}
	if idx, err := s.GoBack(); err != nil || idx != 0 {
		t.Fatalf("GoBack on first step should be a no-op, got %d, %v", idx, err)
	}
}

func TestSessionSubmit(t *testing.T) {
	t.Parallel()

	var received map[string]any
	def := &Definition{
		ID: "upload",
		Steps: []StepDefinition{
			{ID: "docs", Fields: []FieldDescriptor{{Name: "dbs", Kind: field.KindFile, Accept: field.AcceptDocument, Rules: Rules{Required: true}}}},
			{ID: "confirm", Fields: []FieldDescriptor{{Name: "agree", Kind: field.KindBoolean, Rules: Rules{Required: true}}}},
		},
	}
	s, err := NewSession(def, WithSubmit(func(_ context.Context, _ *Session, payload map[string]any) error {
		received = payload
		return nil
	}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrNotLastStep) {
		t.Fatalf("submit from first step should fail, got %v", err)
	}

	s.State().SetMany(map[string]any{"dbsUrl": "https://files.example.com/dbs.pdf", "dbsPreview": "data:..."})
	if _, err := s.GoNext(); err != nil {
		t.Fatalf("persisted file url should satisfy required: %v", err)
	}

	var verr *ValidationError
	if _, err := s.Submit(context.Background()); !errors.As(err, &verr) {
		t.Fatalf("submit with missing agree should fail validation, got %v", err)
	}

	s.State().Set("agree", false)
	payload, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, ok := payload["dbsPreview"]; ok {
		t.Fatalf("previews must not be submitted: %#v", payload)
	}
	if diff := cmp.Diff(payload, received); diff != "" {
		t.Fatalf("handler payload mismatch (-want +got):\n%s", diff)
	}
	if !s.Submitted() {
		t.Fatalf("session should be submitted")
	}
	if _, err := s.GoBack(); !errors.Is(err, ErrSubmitted) {
		t.Fatalf("navigation after submit should fail with ErrSubmitted, got %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrSubmitted) {
		t.Fatalf("second submit should fail with ErrSubmitted, got %v", err)
	}
}

func TestSessionSubmitFailureKeepsSessionOpen(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	def := &Definition{ID: "one", Steps: []StepDefinition{{ID: "only"}}}
	s, err := NewSession(def, WithSubmit(func(context.Context, *Session, map[string]any) error { return boom }))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if s.Submitted() {
		t.Fatalf("failed submit must not mark the session submitted")
	}
}

func TestValidateStepRules(t *testing.T) {
	t.Parallel()

	def := &Definition{
		ID: "rules",
		Steps: []StepDefinition{{
			ID: "details",
			Fields: []FieldDescriptor{
				{Name: "postcode", Kind: field.KindText, Rules: Rules{Pattern: `^[A-Z0-9 ]+$`}},
				{Name: "hours", Kind: field.KindNumber, Rules: Rules{Min: floatPtr(1), Max: floatPtr(48)}},
				{Name: "bio", Kind: field.KindTextArea, Rules: Rules{MaxLength: intPtr(5)}},
				{Name: "languages", Kind: field.KindCheckboxGroup, Multiple: true, Rules: Rules{MinLength: intPtr(2)}},
				{Name: "cohabitants", Kind: field.KindText, VisibleWhen: `livesAlone == "no"`, Rules: Rules{Required: true}},
			},
			ValidWhen:    "consent",
			ValidMessage: "consent is required",
		}},
	}
	if err := def.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	s, err := NewSession(def, WithInitialValues(map[string]any{
		"postcode":   "sw1",
		"hours":      60.0,
		"bio":        "too long",
		"languages":  []any{"en"},
		"livesAlone": "no",
	}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	issues := s.Validate(0)
	var rules []string
	for _, issue := range issues {
		rules = append(rules, issue.Field+":"+issue.Rule)
	}
	want := []string{
		"postcode:" + RulePattern,
		"hours:" + RuleMax,
		"bio:" + RuleMaxLength,
		"languages:" + RuleMinLength,
		"cohabitants:" + RuleRequired,
		":" + RuleStep,
	}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}

	s.State().Set("livesAlone", "yes")
	for _, fd := range s.VisibleFields(0) {
		if fd.Name == "cohabitants" {
			t.Fatalf("cohabitants should be hidden when living alone")
		}
	}
}

func TestDefinitionDependenciesRunInsideSet(t *testing.T) {
	t.Parallel()

	def := &Definition{
		ID:    "deps",
		Steps: []StepDefinition{{ID: "home"}},
		Dependencies: []DependencyRule{
			{Field: "livesAlone", When: `livesAlone == "yes"`, Clear: []string{"cohabitants"}},
		},
	}
	s, err := NewSession(def, WithInitialValues(map[string]any{"livesAlone": "no", "cohabitants": "Son"}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.State().Set("livesAlone", "yes")
	if s.State().Has("cohabitants") {
		t.Fatalf("cohabitants should be cleared by the dependency rule")
	}
}

func TestDefinitionCompileErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]*Definition{
		"no id":      {Steps: []StepDefinition{{ID: "a"}}},
		"no steps":   {ID: "x"},
		"dup step":   {ID: "x", Steps: []StepDefinition{{ID: "a"}, {ID: "a"}}},
		"bad rule":   {ID: "x", Steps: []StepDefinition{{ID: "a", SkipWhen: "a =="}}},
		"bad kind":   {ID: "x", Steps: []StepDefinition{{ID: "a", Fields: []FieldDescriptor{{Name: "f", Kind: "slider"}}}}},
		"bad regexp": {ID: "x", Steps: []StepDefinition{{ID: "a", Fields: []FieldDescriptor{{Name: "f", Rules: Rules{Pattern: "("}}}}}},
	}
	for name, def := range cases {
		if err := def.Compile(); err == nil {
			t.Fatalf("%s: expected compile error", name)
		}
	}
}
