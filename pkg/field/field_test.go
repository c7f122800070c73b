package field

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// memStore is a minimal Store that records batches.
type memStore struct {
	values  map[string]any
	batches [][]Change
}

func newMemStore(values map[string]any) *memStore {
	if values == nil {
		values = map[string]any{}
	}
	return &memStore{values: values}
}

func (m *memStore) Get(name string, fallback any) any {
	if v, ok := m.values[name]; ok {
		return v
	}
	return fallback
}

func (m *memStore) Apply(changes ...Change) map[string]any {
	m.batches = append(m.batches, changes)
	for _, c := range changes {
		m.values[c.Name] = c.Value
	}
	return m.values
}

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"My Résumé (final)v2.pdf": "My_R_sum_final_v2.pdf",
		"report.pdf":              "report.pdf",
		"__a  b__":                "a_b",
		"../../etc/passwd":        ".._.._etc_passwd",
		"déjà vu.png":             "d_j_vu.png",
		"###":                     "file",
		"":                        "file",
		"scan-01_final.JPG":       "scan-01_final.JPG",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFileNameProperties(t *testing.T) {
	t.Parallel()

	allowed := regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	inputs := []string{
		"a b c", "__x__", "日本語.txt", "tab\tname", "a__b", "(1)(2)(3)", "x/y\\z", "  ", "ok",
		"émoji 😀 file.png", "semi;colon,comma.doc", "_", "a_", "_a",
	}
	for _, in := range inputs {
		got := SanitizeFileName(in)
		if !allowed.MatchString(got) {
			t.Fatalf("SanitizeFileName(%q) = %q contains disallowed characters", in, got)
		}
		if strings.Contains(got, "__") {
			t.Fatalf("SanitizeFileName(%q) = %q has a run of underscores", in, got)
		}
		if strings.HasPrefix(got, "_") || strings.HasSuffix(got, "_") {
			t.Fatalf("SanitizeFileName(%q) = %q has leading/trailing underscore", in, got)
		}
	}
}

var sortMembers = cmpopts.SortSlices(func(a, b any) bool { return memberKey(a) < memberKey(b) })

func TestCheckboxGroupMultipleDoubleToggle(t *testing.T) {
	t.Parallel()

	group := CheckboxGroup{Name: "conditions", Multiple: true}
	original := []any{"dementia", "diabetes"}

	for _, option := range []any{"asthma", "dementia", "diabetes"} {
		first := group.Toggle(original, option)
		second := group.Toggle(first.Value, option)
		if diff := cmp.Diff(original, second.Value, sortMembers); diff != "" {
			t.Fatalf("double toggle of %v changed value (-want +got):\n%s", option, diff)
		}
	}
}

func TestCheckboxGroupMultipleDeduplicates(t *testing.T) {
	t.Parallel()

	group := CheckboxGroup{Name: "languages", Multiple: true}
	got := group.Toggle([]string{"en", "fr", "en"}, "de").Value
	want := []any{"en", "fr", "de"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected members (-want +got):\n%s", diff)
	}

	got = group.Toggle(nil, "en").Value
	if diff := cmp.Diff([]any{"en"}, got); diff != "" {
		t.Fatalf("toggle from nil (-want +got):\n%s", diff)
	}
}

func TestCheckboxGroupSingleModes(t *testing.T) {
	t.Parallel()

	radio := CheckboxGroup{Name: "livesAlone", Options: []Option{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}}}
	store := newMemStore(map[string]any{"livesAlone": "yes"})
	radio.Pick(store, "no")
	if store.values["livesAlone"] != "no" {
		t.Fatalf("radio pick should replace value, got %v", store.values["livesAlone"])
	}
	if !radio.Selected("no", "no") || radio.Selected("no", "yes") {
		t.Fatalf("Selected mismatch for radio group")
	}

	single := CheckboxGroup{Name: "consent", Options: []Option{{Label: "I agree", Value: true}}}
	store = newMemStore(nil)
	single.Pick(store, true)
	if store.values["consent"] != true {
		t.Fatalf("single checkbox should toggle to true, got %v", store.values["consent"])
	}
	single.Pick(store, true)
	if store.values["consent"] != false {
		t.Fatalf("single checkbox should toggle back to false, got %v", store.values["consent"])
	}
}

func TestFromInput(t *testing.T) {
	t.Parallel()

	change, err := FromInput(KindNumber, "hours", " 37.5 ")
	if err != nil || change.Value != 37.5 {
		t.Fatalf("number: got %+v, %v", change, err)
	}
	change, err = FromInput(KindDate, "dob", "1941-03-02")
	if err != nil || change.Value != "1941-03-02" {
		t.Fatalf("date: got %+v, %v", change, err)
	}
	if _, err := FromInput(KindDate, "dob", "02/03/1941"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad date, got %v", err)
	}
	change, err = FromInput(KindBoolean, "driver", "Yes")
	if err != nil || change.Value != true {
		t.Fatalf("boolean: got %+v, %v", change, err)
	}
	change, err = FromInput(KindTime, "start", "")
	if err != nil || change.Value != nil {
		t.Fatalf("empty time should clear, got %+v, %v", change, err)
	}
	if _, err := FromInput(KindFile, "photo", "x"); err == nil {
		t.Fatalf("expected file kind to be rejected")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFileFieldSelectImage(t *testing.T) {
	t.Parallel()

	store := newMemStore(nil)
	f := FileField{Name: "photo", Accept: AcceptImage}

	if _, err := f.Select(store, "My Photo (1).png", "", bytes.NewReader(pngBytes(t))); err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 3 {
		t.Fatalf("expected one batch of three changes, got %#v", store.batches)
	}
	handle, ok := store.values["photo"].(*FileHandle)
	if !ok {
		t.Fatalf("expected *FileHandle, got %T", store.values["photo"])
	}
	if handle.Name != "My_Photo_1_.png" {
		t.Fatalf("unexpected sanitized name %q", handle.Name)
	}
	if store.values["photoName"] != handle.Name {
		t.Fatalf("photoName mismatch: %v", store.values["photoName"])
	}
	preview, _ := store.values["photoPreview"].(string)
	if !strings.HasPrefix(preview, "data:image/png;base64,") {
		t.Fatalf("expected png data URL preview, got %q", preview)
	}
}

func TestFileFieldRejections(t *testing.T) {
	t.Parallel()

	store := newMemStore(nil)

	doc := FileField{Name: "cv", Accept: AcceptDocument}
	_, err := doc.Select(store, "cv.png", "image/png", bytes.NewReader(pngBytes(t)))
	if !errors.Is(err, ErrFileType) {
		t.Fatalf("expected ErrFileType, got %v", err)
	}

	small := FileField{Name: "cv", Accept: AcceptDocument, MaxSize: 4}
	_, err = small.Select(store, "cv.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	img := FileField{Name: "photo", Accept: AcceptImage}
	_, err = img.Select(store, "fake.png", "image/png", strings.NewReader("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
	var fileErr *FileError
	if !errors.As(err, &fileErr) || fileErr.Field != "photo" {
		t.Fatalf("expected *FileError for photo, got %#v", err)
	}

	if len(store.batches) != 0 {
		t.Fatalf("rejected files must not mutate state, got %#v", store.batches)
	}
}

func TestFileFieldRemove(t *testing.T) {
	t.Parallel()

	store := newMemStore(map[string]any{
		"dbs":        &FileHandle{Name: "dbs.pdf"},
		"dbsPreview": "",
		"dbsName":    "dbs.pdf",
		"dbsUrl":     "https://files.example.com/dbs.pdf",
	})
	FileField{Name: "dbs"}.Remove(store)

	if len(store.batches) != 1 {
		t.Fatalf("expected a single batch, got %d", len(store.batches))
	}
	for _, key := range []string{"dbs", "dbsPreview", "dbsName", "dbsUrl"} {
		if store.values[key] != nil {
			t.Fatalf("expected %s cleared, got %v", key, store.values[key])
		}
	}
}

func TestPreviewKindAndFormatSize(t *testing.T) {
	t.Parallel()

	if got := PreviewKind("https://cdn.example.com/a/photo.JPG?sig=1"); got != "image" {
		t.Fatalf("PreviewKind image = %q", got)
	}
	if got := PreviewKind("contract.pdf"); got != "pdf" {
		t.Fatalf("PreviewKind pdf = %q", got)
	}
	if got := PreviewKind("notes.docx"); got != "other" {
		t.Fatalf("PreviewKind other = %q", got)
	}
	if got := FormatSize(1536); got != "1.5 KB" {
		t.Fatalf("FormatSize = %q", got)
	}
}

func TestWeekGridToggleAndHours(t *testing.T) {
	t.Parallel()

	store := newMemStore(nil)
	grid := WeekGrid{Name: "availability"}

	grid.ToggleDay(store, Monday)
	week := grid.Decode(store.values["availability"])
	if !week[Monday].Available || week[Tuesday].Available {
		t.Fatalf("only monday should be available: %#v", week)
	}
	if week[Monday].Start != DefaultDayStart || week[Monday].End != DefaultDayEnd {
		t.Fatalf("expected default hours, got %#v", week[Monday])
	}

	if _, err := grid.SetHours(store, Monday, "08:00", "12:30"); err != nil {
		t.Fatalf("SetHours returned error: %v", err)
	}
	week = grid.Decode(store.values["availability"])
	want := DayAvailability{Available: true, Start: "08:00", End: "12:30"}
	if diff := cmp.Diff(want, week[Monday]); diff != "" {
		t.Fatalf("monday mismatch (-want +got):\n%s", diff)
	}
	if len(store.batches) != 2 {
		t.Fatalf("each grid edit should forward immediately, got %d batches", len(store.batches))
	}

	if _, err := grid.SetHours(store, Monday, "12:00", "08:00"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for reversed hours, got %v", err)
	}
}

func TestSlotGridToggle(t *testing.T) {
	t.Parallel()

	store := newMemStore(nil)
	grid := SlotGrid{Name: "visits", Slots: []string{"morning", "evening"}}
	grid.ToggleSlot(store, "morning", Friday)

	decoded := grid.Decode(store.values["visits"])
	if !decoded["morning"][Friday] {
		t.Fatalf("expected morning friday booked")
	}
	if decoded["evening"][Friday] || decoded["morning"][Monday] {
		t.Fatalf("unexpected cells booked: %#v", decoded)
	}
}
