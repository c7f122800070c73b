// Package formflow wires the wizard engine to the built-in onboarding
// definitions and the backend client.
//
// Typical use:
//
//	store, _ := formflow.Load(os.DirFS("./wizards"))
//	def, _ := store.Definition("employee")
//	session, _ := formflow.NewSession(def, formflow.Options{Client: client})
package formflow

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/lookup"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

//go:embed wizards/*.yaml
var embeddedWizards embed.FS

// BuiltinFS exposes the embedded wizard definitions.
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(embeddedWizards, "wizards")
	if err != nil {
		return embeddedWizards
	}
	return sub
}

// Builtin loads the embedded definitions: employee, client,
// internal-request, external-request and care-plan-essentials.
func Builtin() (*wizard.Store, error) {
	return wizard.LoadFS(BuiltinFS())
}

// Load returns the built-in definitions merged with those found in extra.
// A definition in extra replaces the built-in one with the same id; ids
// duplicated inside extra are still rejected.
func Load(extra fs.FS) (*wizard.Store, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("formflow: builtin wizards: %w", err)
	}
	if extra == nil {
		return builtin, nil
	}
	custom, err := wizard.LoadFS(extra)
	if err != nil {
		return nil, err
	}

	var defs []*wizard.Definition
	for _, id := range builtin.IDs() {
		if _, overridden := custom.Definition(id); overridden {
			continue
		}
		def, _ := builtin.Definition(id)
		defs = append(defs, def)
	}
	for _, id := range custom.IDs() {
		def, _ := custom.Definition(id)
		defs = append(defs, def)
	}
	return wizard.NewStore(defs...)
}

// Options configures NewSession.
type Options struct {
	// Client submits the payload to the definition's resource. Without a
	// client the session has no submit handler.
	Client *api.Client
	Submit api.SubmitOptions
	// Initial seeds the state, typically a fetched entity.
	Initial map[string]any
	// Extras are exposed to rules under `extras.`.
	Extras map[string]any
	Logger *slog.Logger
}

// NewSession opens a session over def and wires the backend submit handler
// for def.Resource when a client is configured.
func NewSession(def *wizard.Definition, opts Options) (*wizard.Session, error) {
	if def == nil {
		return nil, fmt.Errorf("formflow: definition is nil")
	}
	sessionOpts := []wizard.SessionOption{
		wizard.WithInitialValues(opts.Initial),
		wizard.WithExtras(opts.Extras),
		wizard.WithLogger(opts.Logger),
	}
	if opts.Client != nil && strings.TrimSpace(def.Resource) != "" {
		resource, err := opts.Client.ResourceByName(def.Resource)
		if err != nil {
			return nil, fmt.Errorf("formflow: wizard %s: %w", def.ID, err)
		}
		sessionOpts = append(sessionOpts, wizard.WithSubmit(api.SubmitHandler(resource, opts.Submit)))
	}
	return wizard.NewSession(def, sessionOpts...)
}

// Edit fetches the entity with id from the definition's resource and opens
// a session seeded with it. Submitting patches the entity.
func Edit(ctx context.Context, def *wizard.Definition, id string, opts Options) (*wizard.Session, error) {
	if def == nil {
		return nil, fmt.Errorf("formflow: definition is nil")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("formflow: edit %s: client is required", def.ID)
	}
	resource, err := opts.Client.ResourceByName(def.Resource)
	if err != nil {
		return nil, fmt.Errorf("formflow: wizard %s: %w", def.ID, err)
	}
	record, err := resource.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("formflow: load %s %s: %w", resource.Name, id, err)
	}

	key := opts.Submit.IDKey
	if key == "" {
		key = api.DefaultIDKey
	}
	extras := make(map[string]any, len(opts.Extras)+1)
	for k, v := range opts.Extras {
		extras[k] = v
	}
	extras[key] = id
	opts.Initial = record
	opts.Extras = extras
	return NewSession(def, opts)
}

// AddressLookup binds the address fields of s to places.
func AddressLookup(s *wizard.Session, places lookup.Places, opts ...lookup.AddressOption) (*lookup.Address, error) {
	if s == nil {
		return nil, fmt.Errorf("formflow: session is nil")
	}
	return lookup.NewAddress(places, s.State(), opts...)
}
