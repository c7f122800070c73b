package lookup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formflow/pkg/field"
)

// MinQueryLength is the shortest input that triggers a lookup.
const MinQueryLength = 3

// AddressFields names the state keys an address lookup writes.
type AddressFields struct {
	Address   string
	Postcode  string
	Latitude  string
	Longitude string
}

// DefaultAddressFields matches the employee and client payloads.
var DefaultAddressFields = AddressFields{
	Address:   "address",
	Postcode:  "postcode",
	Latitude:  "latitude",
	Longitude: "longitude",
}

// AddressOption customises an Address binding.
type AddressOption func(*Address)

// WithFields overrides the state keys.
func WithFields(fields AddressFields) AddressOption {
	return func(a *Address) { a.fields = fields }
}

// WithDelay overrides the debounce window.
func WithDelay(delay time.Duration) AddressOption {
	return func(a *Address) { a.delay = delay }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) AddressOption {
	return func(a *Address) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSuggestionsHandler is called whenever the visible suggestion list
// changes, including when it is cleared. Calls are serialised; fn must not
// call Input or Select.
func WithSuggestionsHandler(fn func([]Suggestion)) AddressOption {
	return func(a *Address) { a.onSuggestions = fn }
}

// Address binds an address input to a Places provider and a field store.
type Address struct {
	places    Places
	store     field.Store
	fields    AddressFields
	delay     time.Duration
	logger    *slog.Logger
	debouncer *Debouncer

	// emit orders publishes against clears; mu guards the list itself.
	emit          sync.Mutex
	mu            sync.Mutex
	suggestions   []Suggestion
	onSuggestions func([]Suggestion)
}

// NewAddress creates the binding.
func NewAddress(places Places, store field.Store, opts ...AddressOption) (*Address, error) {
	if places == nil {
		return nil, fmt.Errorf("lookup: places provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("lookup: store is required")
	}
	a := &Address{
		places: places,
		store:  store,
		fields: DefaultAddressFields,
		delay:  DefaultDelay,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.debouncer = NewDebouncer(a.delay)
	return a, nil
}

// Input records a keystroke. The typed text is written to the address key
// immediately; the lookup runs once the input has been quiet for the debounce
// window. Inputs shorter than MinQueryLength clear the suggestions without a
// call.
func (a *Address) Input(ctx context.Context, query string) {
	a.store.Apply(field.Text(a.fields.Address, query))

	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLength {
		a.clear()
		return
	}
	a.debouncer.Trigger(ctx, func(ctx context.Context, seq uint64) {
		suggestions, err := a.places.Autocomplete(ctx, query)
		if err != nil {
			a.logger.Warn("address autocomplete failed", "error", err)
			suggestions = nil
		}
		if !a.publishIfLatest(seq, suggestions) {
			a.logger.Debug("dropping stale address suggestions", "query", query, "seq", seq)
		}
	})
}

// Suggestions returns the current suggestion list.
func (a *Address) Suggestions() []Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Suggestion(nil), a.suggestions...)
}

// Select resolves s and writes address, postcode and coordinates in one
// update. When details cannot be fetched the description is still written,
// the postcode is emptied, the coordinates are cleared and the error is
// returned.
func (a *Address) Select(ctx context.Context, s Suggestion) (map[string]any, error) {
	a.debouncer.Cancel()
	place, err := a.places.Details(ctx, s.PlaceID)
	if err != nil {
		a.logger.Warn("address details failed", "place_id", s.PlaceID, "error", err)
		place = Place{}
	}

	changes := []field.Change{
		{Name: a.fields.Address, Value: s.Description},
		{Name: a.fields.Postcode, Value: place.Postcode},
		{Name: a.fields.Latitude, Value: floatOrNil(place.Latitude)},
		{Name: a.fields.Longitude, Value: floatOrNil(place.Longitude)},
	}
	snapshot := a.store.Apply(changes...)
	a.clear()
	if err != nil {
		return snapshot, fmt.Errorf("lookup: details %s: %w", s.PlaceID, err)
	}
	return snapshot, nil
}

// Close stops pending lookups.
func (a *Address) Close() {
	a.debouncer.Close()
}

// publishIfLatest stores suggestions only while seq is still current. The
// sequence check holds the emit lock shared with clear.
func (a *Address) publishIfLatest(seq uint64, suggestions []Suggestion) bool {
	a.emit.Lock()
	defer a.emit.Unlock()
	if !a.debouncer.Latest(seq) {
		return false
	}
	a.setLocked(suggestions)
	return true
}

// clear invalidates in-flight lookups and empties the list.
func (a *Address) clear() {
	a.emit.Lock()
	defer a.emit.Unlock()
	a.debouncer.Cancel()
	a.setLocked(nil)
}

func (a *Address) setLocked(suggestions []Suggestion) {
	a.mu.Lock()
	a.suggestions = suggestions
	fn := a.onSuggestions
	a.mu.Unlock()
	if fn != nil {
		fn(append([]Suggestion(nil), suggestions...))
	}
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
