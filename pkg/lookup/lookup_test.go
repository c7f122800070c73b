package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/goliatone/go-formflow/pkg/formstate"
)

type fakePlaces struct {
	mu      sync.Mutex
	queries []string
	calls   atomic.Int32

	autocomplete func(ctx context.Context, input string) ([]Suggestion, error)
	details      func(ctx context.Context, placeID string) (Place, error)
}

func (f *fakePlaces) Autocomplete(ctx context.Context, input string) ([]Suggestion, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, input)
	f.mu.Unlock()
	if f.autocomplete != nil {
		return f.autocomplete(ctx, input)
	}
	return []Suggestion{{PlaceID: "p-" + input, Description: input + ", London"}}, nil
}

func (f *fakePlaces) Details(ctx context.Context, placeID string) (Place, error) {
	if f.details != nil {
		return f.details(ctx, placeID)
	}
	return Place{}, nil
}

func (f *fakePlaces) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func TestDebouncerDropsSupersededCall(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(5 * time.Millisecond)
	defer d.Close()

	started := make(chan context.Context, 1)
	release := make(chan struct{})
	results := make(chan bool, 2)

	d.Trigger(context.Background(), func(ctx context.Context, seq uint64) {
		started <- ctx
		<-release
		results <- d.Latest(seq)
	})
	firstCtx := waitFor(t, started)

	d.Trigger(context.Background(), func(ctx context.Context, seq uint64) {
		results <- d.Latest(seq)
	})
	if latest := waitFor(t, results); !latest {
		t.Fatal("second call should be the latest")
	}
	if firstCtx.Err() == nil {
		t.Fatal("first call context should be cancelled")
	}

	close(release)
	if latest := waitFor(t, results); latest {
		t.Fatal("first call should be stale")
	}
}

func TestDebouncerCloseIgnoresTriggers(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(time.Millisecond)
	d.Close()
	var ran atomic.Bool
	if seq := d.Trigger(context.Background(), func(context.Context, uint64) { ran.Store(true) }); seq != 0 {
		t.Fatalf("Trigger after Close returned seq %d", seq)
	}
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Fatal("closed debouncer must not run calls")
	}
}

func TestAddressCoalescesKeystrokes(t *testing.T) {
	t.Parallel()

	places := &fakePlaces{}
	state := formstate.New(nil)
	published := make(chan []Suggestion, 4)
	addr, err := NewAddress(places, state,
		WithDelay(30*time.Millisecond),
		WithLogger(slogt.New(t)),
		WithSuggestionsHandler(func(s []Suggestion) { published <- s }),
	)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	ctx := context.Background()
	for _, q := range []string{"10 D", "10 Do", "10 Dow"} {
		addr.Input(ctx, q)
	}

	got := waitFor(t, published)
	want := []Suggestion{{PlaceID: "p-10 Dow", Description: "10 Dow, London"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
	time.Sleep(60 * time.Millisecond)
	if n := places.calls.Load(); n != 1 {
		t.Fatalf("autocomplete calls = %d, want 1 (%v)", n, places.seen())
	}
	if v := state.Get("address", nil); v != "10 Dow" {
		t.Fatalf("address = %v", v)
	}
}

func TestAddressShortQueryClearsWithoutCall(t *testing.T) {
	t.Parallel()

	places := &fakePlaces{}
	state := formstate.New(nil)
	published := make(chan []Suggestion, 2)
	addr, err := NewAddress(places, state,
		WithDelay(5*time.Millisecond),
		WithSuggestionsHandler(func(s []Suggestion) { published <- s }),
	)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	addr.Input(context.Background(), "ab")
	if got := waitFor(t, published); len(got) != 0 {
		t.Fatalf("expected cleared suggestions, got %v", got)
	}
	time.Sleep(20 * time.Millisecond)
	if n := places.calls.Load(); n != 0 {
		t.Fatalf("autocomplete calls = %d, want 0", n)
	}
	if v := state.Get("address", nil); v != "ab" {
		t.Fatalf("address = %v", v)
	}
}

func TestAddressDropsStaleResponse(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	firstStarted := make(chan struct{})
	places := &fakePlaces{}
	places.autocomplete = func(ctx context.Context, input string) ([]Suggestion, error) {
		if input == "Main" {
			close(firstStarted)
			<-release
			return []Suggestion{{PlaceID: "old", Description: "stale"}}, nil
		}
		return []Suggestion{{PlaceID: "new", Description: input}}, nil
	}

	published := make(chan []Suggestion, 4)
	addr, err := NewAddress(places, formstate.New(nil),
		WithDelay(5*time.Millisecond),
		WithLogger(slogt.New(t)),
		WithSuggestionsHandler(func(s []Suggestion) { published <- s }),
	)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	ctx := context.Background()
	addr.Input(ctx, "Main")
	waitFor(t, firstStarted)
	addr.Input(ctx, "Main Street")

	got := waitFor(t, published)
	if diff := cmp.Diff([]Suggestion{{PlaceID: "new", Description: "Main Street"}}, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}

	close(release)
	select {
	case stale := <-published:
		t.Fatalf("stale response was published: %v", stale)
	case <-time.After(50 * time.Millisecond):
	}
	if diff := cmp.Diff([]Suggestion{{PlaceID: "new", Description: "Main Street"}}, addr.Suggestions()); diff != "" {
		t.Fatalf("current suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressSelectWritesOneBatch(t *testing.T) {
	t.Parallel()

	lat, lng := 51.5034, -0.1276
	places := &fakePlaces{
		details: func(_ context.Context, placeID string) (Place, error) {
			if placeID != "abc" {
				t.Errorf("placeID = %q", placeID)
			}
			return Place{Postcode: "SW1A 2AA", Latitude: &lat, Longitude: &lng}, nil
		},
	}
	state := formstate.New(nil)
	var events int
	unsubscribe := state.Subscribe(func(formstate.Event) { events++ })
	defer unsubscribe()

	addr, err := NewAddress(places, state)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	snapshot, err := addr.Select(context.Background(), Suggestion{PlaceID: "abc", Description: "10 Downing Street, London"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := map[string]any{
		"address":   "10 Downing Street, London",
		"postcode":  "SW1A 2AA",
		"latitude":  lat,
		"longitude": lng,
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if events != 1 {
		t.Fatalf("notifications = %d, want 1", events)
	}
}

func TestAddressSelectKeepsDescriptionWhenDetailsFail(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	places := &fakePlaces{
		details: func(context.Context, string) (Place, error) { return Place{}, boom },
	}
	state := formstate.New(map[string]any{"postcode": "OLD", "latitude": 1.0})
	addr, err := NewAddress(places, state, WithFields(AddressFields{
		Address: "home.line1", Postcode: "postcode", Latitude: "latitude", Longitude: "longitude",
	}))
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	_, err = addr.Select(context.Background(), Suggestion{PlaceID: "x", Description: "1 High St"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped details error, got %v", err)
	}
	if v := state.Get("home.line1", nil); v != "1 High St" {
		t.Fatalf("address = %v", v)
	}
	if v := state.Get("postcode", nil); v != "" {
		t.Fatalf("postcode = %v", v)
	}
	if v, ok := state.Lookup("latitude"); !ok || v != nil {
		t.Fatalf("latitude = %v (present %v), want explicit nil", v, ok)
	}
}

func TestPlacesClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "k-123" {
			t.Errorf("missing key: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/autocomplete/json":
			if q.Get("types") != "address" {
				t.Errorf("types = %q", q.Get("types"))
			}
			if q.Get("input") == "denied" {
				_ = json.NewEncoder(w).Encode(map[string]any{"status": "REQUEST_DENIED", "error_message": "bad key"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":      "OK",
				"predictions": []any{map[string]any{"place_id": "pid", "description": "1 High St"}},
			})
		case "/details/json":
			if q.Get("fields") != "address_component,geometry" {
				t.Errorf("fields = %q", q.Get("fields"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"result": map[string]any{
					"address_components": []any{
						map[string]any{"long_name": "London", "types": []string{"locality"}},
						map[string]any{"long_name": "N1 9GU", "types": []string{"postal_code"}},
					},
					"geometry": map[string]any{"location": map[string]any{"lat": 51.5, "lng": -0.12}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewPlacesClient(PlacesOptions{BaseURL: srv.URL, Key: "k-123", HTTPClient: srv.Client(), Logger: slogt.New(t)})
	if err != nil {
		t.Fatalf("NewPlacesClient: %v", err)
	}
	ctx := context.Background()

	suggestions, err := client.Autocomplete(ctx, "1 High")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if diff := cmp.Diff([]Suggestion{{PlaceID: "pid", Description: "1 High St"}}, suggestions); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}

	place, err := client.Details(ctx, "pid")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if place.Postcode != "N1 9GU" || place.Latitude == nil || *place.Latitude != 51.5 || *place.Longitude != -0.12 {
		t.Fatalf("place = %+v", place)
	}

	if _, err := client.Autocomplete(ctx, "denied"); !errors.Is(err, ErrPlacesStatus) {
		t.Fatalf("expected ErrPlacesStatus, got %v", err)
	}
	if _, err := NewPlacesClient(PlacesOptions{BaseURL: srv.URL}); err == nil {
		t.Fatal("expected error without key")
	}
}

func TestAddressClearWinsOverSupersededPublish(t *testing.T) {
	t.Parallel()

	var published [][]Suggestion
	addr, err := NewAddress(&fakePlaces{}, formstate.New(nil),
		WithDelay(time.Hour),
		WithSuggestionsHandler(func(s []Suggestion) { published = append(published, s) }),
	)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	defer addr.Close()

	seq := addr.debouncer.Trigger(context.Background(), func(context.Context, uint64) {})
	addr.Input(context.Background(), "ab")

	if addr.publishIfLatest(seq, []Suggestion{{PlaceID: "old", Description: "stale"}}) {
		t.Fatal("superseded sequence should not publish")
	}
	if got := addr.Suggestions(); len(got) != 0 {
		t.Fatalf("suggestions = %v, want cleared", got)
	}
	if len(published) != 1 || len(published[0]) != 0 {
		t.Fatalf("published = %v, want a single clear", published)
	}

	next := addr.debouncer.Trigger(context.Background(), func(context.Context, uint64) {})
	want := []Suggestion{{PlaceID: "new", Description: "Main Street"}}
	if !addr.publishIfLatest(next, want) {
		t.Fatal("current sequence should publish")
	}
	if diff := cmp.Diff(want, addr.Suggestions()); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}
