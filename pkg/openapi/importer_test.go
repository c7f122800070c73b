package openapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

const employeeDoc = `
openapi: 3.0.3
info:
  title: Agency API
  version: "1.0"
paths: {}
components:
  schemas:
    Employee:
      type: object
      required: [first_name, date_of_birth]
      properties:
        id:
          type: integer
          readOnly: true
        first_name:
          type: string
          title: First name
          maxLength: 50
          x-formflow-order: 1
        date_of_birth:
          type: string
          format: date
          x-formflow-order: 2
        contracted_hours:
          type: number
          minimum: 0
          maximum: 48
        has_driving_licence:
          type: boolean
        licence_number:
          type: string
          maxLength: 20
          pattern: "^[A-Z0-9]+$"
          x-formflow-visible-when: has_driving_licence
        languages:
          type: array
          minItems: 1
          items:
            type: string
            enum: [english, welsh, polish]
        cv:
          type: string
          format: binary
          x-formflow-accept: document
        notes:
          type: string
        availability:
          type: object
          x-formflow-kind: grid
        employment_type:
          type: string
          enum: [full_time, part_time]
`

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestFieldsFromSchema(t *testing.T) {
	t.Parallel()

	fields, err := Fields(context.Background(), []byte(employeeDoc), "Employee", Options{})
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}

	want := []wizard.FieldDescriptor{
		{Name: "first_name", Label: "First name", Kind: field.KindText, Rules: wizard.Rules{Required: true, MaxLength: intPtr(50)}},
		{Name: "date_of_birth", Kind: field.KindDate, Rules: wizard.Rules{Required: true}},
		{Name: "availability", Kind: field.KindGrid},
		{Name: "contracted_hours", Kind: field.KindNumber, Rules: wizard.Rules{Min: floatPtr(0), Max: floatPtr(48)}},
		{Name: "cv", Kind: field.KindFile, Accept: field.AcceptDocument},
		{Name: "employment_type", Kind: field.KindSelect, Options: []field.Option{
			{Label: "Full time", Value: "full_time"},
			{Label: "Part time", Value: "part_time"},
		}},
		{Name: "has_driving_licence", Kind: field.KindBoolean},
		{Name: "languages", Kind: field.KindCheckboxGroup, Multiple: true, Rules: wizard.Rules{MinLength: intPtr(1)}, Options: []field.Option{
			{Label: "English", Value: "english"},
			{Label: "Welsh", Value: "welsh"},
			{Label: "Polish", Value: "polish"},
		}},
		{Name: "licence_number", Kind: field.KindText, VisibleWhen: "has_driving_licence", Rules: wizard.Rules{MaxLength: intPtr(20), Pattern: "^[A-Z0-9]+$"}},
		{Name: "notes", Kind: field.KindTextArea},
	}

	if diff := cmp.Diff(want, fields, cmp.AllowUnexported(wizard.Rules{})); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestImportedStepCompiles(t *testing.T) {
	t.Parallel()

	step, err := Step(context.Background(), []byte(employeeDoc), "Employee", "", Options{})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.ID != "employee" {
		t.Fatalf("default step id = %q", step.ID)
	}
	def := &wizard.Definition{ID: "employee", Steps: []wizard.StepDefinition{step}}
	if err := def.Compile(); err != nil {
		t.Fatalf("imported step should compile: %v", err)
	}
}

func TestFieldsMissingSchema(t *testing.T) {
	t.Parallel()

	_, err := Fields(context.Background(), []byte(employeeDoc), "Client", Options{})
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
	if _, err := Fields(context.Background(), nil, "Employee", Options{}); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestReadDocument(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"openapi.yaml": {Data: []byte(employeeDoc)}}
	data, err := ReadDocument(context.Background(), "openapi.yaml", SourceOptions{FileSystem: fsys})
	if err != nil || string(data) != employeeDoc {
		t.Fatalf("fs read failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schema/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(employeeDoc))
	}))
	defer srv.Close()

	if _, err := ReadDocument(context.Background(), srv.URL+"/schema/", SourceOptions{}); err == nil {
		t.Fatalf("http should be disabled without a client")
	}
	data, err = ReadDocument(context.Background(), srv.URL+"/schema/", SourceOptions{HTTPClient: srv.Client()})
	if err != nil || len(data) == 0 {
		t.Fatalf("http read failed: %v", err)
	}
	if _, err := ReadDocument(context.Background(), srv.URL+"/missing", SourceOptions{HTTPClient: srv.Client()}); err == nil {
		t.Fatalf("expected status error")
	}
}
