package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

// DefaultIDKey is the extras key holding the id of the entity being edited.
const DefaultIDKey = "id"

// SubmitOptions tunes the submit handler.
type SubmitOptions struct {
	// IDKey names the extras entry that switches the handler to update mode.
	IDKey string
	// FullUpdate sends the whole payload on update instead of the touched keys.
	FullUpdate bool
	// OnSaved receives the backend representation after a successful save.
	OnSaved func(Record)
}

// SubmitHandler returns a wizard.SubmitFunc that creates the entity when the
// session carries no id and patches it otherwise.
func SubmitHandler(r *Resource, opts SubmitOptions) wizard.SubmitFunc {
	if opts.IDKey == "" {
		opts.IDKey = DefaultIDKey
	}
	return func(ctx context.Context, s *wizard.Session, payload map[string]any) error {
		if r == nil {
			return fmt.Errorf("api: submit %s: no resource", s.Definition().ID)
		}
		id := entityID(s.State().Extras()[opts.IDKey])

		var (
			saved Record
			err   error
		)
		if id == "" {
			saved, err = r.Create(ctx, payload)
		} else {
			patch := payload
			if !opts.FullUpdate {
				patch = dropPreviews(s.Definition(), s.State().Changes())
			}
			saved, err = r.Update(ctx, id, patch)
		}
		if err != nil {
			return err
		}
		if opts.OnSaved != nil {
			opts.OnSaved(saved)
		}
		return nil
	}
}

func entityID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return scalarString(id)
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}

func dropPreviews(def *wizard.Definition, values map[string]any) map[string]any {
	for _, step := range def.Steps {
		for _, fd := range step.Fields {
			if fd.Kind == field.KindFile {
				delete(values, field.KeysFor(fd.Name).Preview)
			}
		}
	}
	return values
}
