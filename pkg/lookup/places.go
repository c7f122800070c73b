package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultPlacesURL is the public Places web service root.
const DefaultPlacesURL = "https://maps.googleapis.com/maps/api/place"

// Suggestion is one autocomplete prediction.
type Suggestion struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// Place is the resolved detail of a suggestion.
type Place struct {
	Postcode  string
	Latitude  *float64
	Longitude *float64
}

// Places is the address provider used by Address.
type Places interface {
	Autocomplete(ctx context.Context, input string) ([]Suggestion, error)
	Details(ctx context.Context, placeID string) (Place, error)
}

// ErrPlacesStatus is returned when the provider answers with a non-OK status.
var ErrPlacesStatus = errors.New("lookup: places request failed")

// PlacesOptions configures a PlacesClient.
type PlacesOptions struct {
	BaseURL    string
	Key        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// PlacesClient talks to a Places-style JSON web service.
type PlacesClient struct {
	base   string
	key    string
	http   *http.Client
	logger *slog.Logger
}

// NewPlacesClient builds a client. An empty BaseURL uses DefaultPlacesURL.
func NewPlacesClient(opts PlacesOptions) (*PlacesClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultPlacesURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("lookup: parse base url: %w", err)
	}
	if strings.TrimSpace(opts.Key) == "" {
		return nil, errors.New("lookup: places key is required")
	}
	client := &PlacesClient{base: base, key: opts.Key, http: opts.HTTPClient, logger: opts.Logger}
	if client.http == nil {
		client.http = &http.Client{Timeout: 10 * time.Second}
	}
	if client.logger == nil {
		client.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return client, nil
}

type autocompleteResponse struct {
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message"`
	Predictions  []Suggestion `json:"predictions"`
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
		Geometry *struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
}

// Autocomplete returns address predictions for input.
func (c *PlacesClient) Autocomplete(ctx context.Context, input string) ([]Suggestion, error) {
	query := url.Values{"input": {input}, "types": {"address"}}
	var resp autocompleteResponse
	if err := c.get(ctx, "autocomplete/json", query, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

// Details resolves the postcode and coordinates of placeID.
func (c *PlacesClient) Details(ctx context.Context, placeID string) (Place, error) {
	query := url.Values{"place_id": {placeID}, "fields": {"address_component,geometry"}}
	var resp detailsResponse
	if err := c.get(ctx, "details/json", query, &resp); err != nil {
		return Place{}, err
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return Place{}, err
	}

	var place Place
	for _, component := range resp.Result.AddressComponents {
		for _, kind := range component.Types {
			if kind == "postal_code" {
				place.Postcode = component.LongName
			}
		}
		if place.Postcode != "" {
			break
		}
	}
	if g := resp.Result.Geometry; g != nil {
		lat, lng := g.Location.Lat, g.Location.Lng
		place.Latitude, place.Longitude = &lat, &lng
	}
	return place, nil
}

func (c *PlacesClient) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	query.Set("key", c.key)
	target := c.base + "/" + endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("lookup: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lookup: %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lookup: %s: unexpected status %s", endpoint, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lookup: decode %s: %w", endpoint, err)
	}
	c.logger.Debug("places request", "endpoint", endpoint)
	return nil
}

func checkStatus(status, message string) error {
	switch status {
	case "", "OK", "ZERO_RESULTS":
		return nil
	}
	if message != "" {
		return fmt.Errorf("%w: %s: %s", ErrPlacesStatus, status, message)
	}
	return fmt.Errorf("%w: %s", ErrPlacesStatus, status)
}
