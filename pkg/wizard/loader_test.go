package wizard

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/field"
)

const employeeYAML = `
wizards:
  employee:
    title: Employee onboarding
    resource: employees
    dependencies:
      - field: hasDrivingLicence
        when: "!hasDrivingLicence"
        clear: [licenceNumber]
    steps:
      - id: personal
        title: Personal details
        fields:
          - name: firstName
            kind: text
            rules: {required: true, maxLength: 50}
          - name: hasDrivingLicence
            kind: boolean
          - name: licenceNumber
            kind: text
            visibleWhen: hasDrivingLicence
      - id: documents
        skipWhen: extras.role == "agency"
        fields:
          - name: cv
            kind: file
            accept: document
`

const clientJSON = `{
  "wizards": {
    "client": {
      "title": "Client onboarding",
      "resource": "clients",
      "steps": [
        {"id": "about", "fields": [{"name": "livesAlone", "kind": "select", "options": [{"label": "Yes", "value": "yes"}, {"label": "No", "value": "no"}]}]}
      ]
    }
  }
}`

func TestLoadFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"wizards/employee.yaml": {Data: []byte(employeeYAML)},
		"wizards/client.json":   {Data: []byte(clientJSON)},
		"wizards/README.md":     {Data: []byte("ignored")},
	}
	store, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	if diff := cmp.Diff([]string{"client", "employee"}, store.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	def, ok := store.Definition("employee")
	if !ok {
		t.Fatalf("employee wizard missing")
	}
	if def.Resource != "employees" || len(def.Steps) != 2 {
		t.Fatalf("unexpected employee definition: %+v", def)
	}
	fd, ok := def.Field("cv")
	if !ok || fd.Kind != field.KindFile || fd.Accept != field.AcceptDocument {
		t.Fatalf("cv descriptor mismatch: %+v", fd)
	}
	if def.Steps[1].Skip == nil || def.Steps[0].Fields[2].Visible == nil {
		t.Fatalf("rule strings should be compiled into predicates")
	}

	s, err := NewSession(def, WithExtras(map[string]any{"role": "agency"}),
		WithInitialValues(map[string]any{"hasDrivingLicence": true, "licenceNumber": "ABC123"}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if diff := cmp.Diff([]int{0}, s.VisibleSteps()); diff != "" {
		t.Fatalf("agency role should skip documents (-want +got):\n%s", diff)
	}
	s.State().Set("hasDrivingLicence", false)
	if s.State().Has("licenceNumber") {
		t.Fatalf("licence number should be cleared by the loaded dependency")
	}

	client, _ := store.Definition("client")
	if diff := cmp.Diff([]field.Option{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}}, client.Steps[0].Fields[0].Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFSRejectsDuplicates(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte(employeeYAML)},
		"b.yaml": {Data: []byte(employeeYAML)},
	}
	_, err := LoadFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "duplicate wizard") {
		t.Fatalf("expected duplicate wizard error, got %v", err)
	}
}

func TestLoadFSRejectsBadFiles(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":    "   ",
		"bad rule": "wizards:\n  x:\n    steps:\n      - id: a\n        skipWhen: \"a >= b\"\n",
		"no steps": "wizards:\n  x:\n    title: nothing\n",
	}
	for name, data := range cases {
		if _, err := LoadFS(fstest.MapFS{"w.yaml": {Data: []byte(data)}}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFSNil(t *testing.T) {
	t.Parallel()

	store, err := LoadFS(nil)
	if err != nil || !store.Empty() {
		t.Fatalf("nil fs should yield an empty store, got %v", err)
	}
}
