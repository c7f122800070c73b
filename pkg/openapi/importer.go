// Package openapi imports wizard field descriptors from the backend's OpenAPI
// document so steps stay in sync with the serializers they submit to.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

// Extension keys read from schema properties.
const (
	ExtVisibleWhen = "x-formflow-visible-when"
	ExtOrder       = "x-formflow-order"
	ExtKind        = "x-formflow-kind"
	ExtAccept      = "x-formflow-accept"
)

// textareaThreshold turns long free-text properties into textareas.
const textareaThreshold = 255

var ErrSchemaNotFound = errors.New("openapi: schema not found")

// Options tunes the importer.
type Options struct {
	// ResolveReferences allows external $ref resolution and validates the
	// document before import.
	ResolveReferences bool
	// IncludeReadOnly keeps readOnly properties such as ids and timestamps.
	IncludeReadOnly bool
}

// Fields loads raw and converts components.schemas[schemaName] into field
// descriptors ordered by x-formflow-order, then name.
func Fields(ctx context.Context, raw []byte, schemaName string, opts Options) ([]wizard.FieldDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}

	loader := &openapi3.Loader{
		Context:               ctx,
		IsExternalRefsAllowed: opts.ResolveReferences,
	}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if opts.ResolveReferences {
		if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return nil, fmt.Errorf("openapi: validate: %w", err)
		}
	}
	if doc.Components == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	ref, ok := doc.Components.Schemas[schemaName]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	return convertObject(ref.Value, opts), nil
}

// Step wraps Fields into a single step definition.
func Step(ctx context.Context, raw []byte, schemaName, stepID string, opts Options) (wizard.StepDefinition, error) {
	fields, err := Fields(ctx, raw, schemaName, opts)
	if err != nil {
		return wizard.StepDefinition{}, err
	}
	if stepID == "" {
		stepID = strings.ToLower(schemaName)
	}
	return wizard.StepDefinition{ID: stepID, Title: schemaName, Fields: fields}, nil
}

type orderedField struct {
	order float64
	fd    wizard.FieldDescriptor
}

func convertObject(schema *openapi3.Schema, opts Options) []wizard.FieldDescriptor {
	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}

	collected := make([]orderedField, 0, len(schema.Properties))
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := ref.Value
		if prop.ReadOnly && !opts.IncludeReadOnly {
			continue
		}
		fd, ok := convertProperty(name, prop)
		if !ok {
			continue
		}
		if _, ok := required[name]; ok {
			fd.Rules.Required = true
		}
		collected = append(collected, orderedField{order: extensionNumber(prop.Extensions, ExtOrder), fd: fd})
	}

	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].order != collected[j].order {
			return collected[i].order < collected[j].order
		}
		return collected[i].fd.Name < collected[j].fd.Name
	})

	out := make([]wizard.FieldDescriptor, 0, len(collected))
	for _, entry := range collected {
		out = append(out, entry.fd)
	}
	return out
}

func convertProperty(name string, prop *openapi3.Schema) (wizard.FieldDescriptor, bool) {
	fd := wizard.FieldDescriptor{
		Name:        name,
		Label:       prop.Title,
		Help:        prop.Description,
		VisibleWhen: extensionString(prop.Extensions, ExtVisibleWhen),
	}

	switch firstType(prop.Type) {
	case openapi3.TypeBoolean:
		fd.Kind = field.KindBoolean
	case openapi3.TypeInteger, openapi3.TypeNumber:
		fd.Kind = field.KindNumber
		if prop.Min != nil {
			v := *prop.Min
			fd.Rules.Min = &v
		}
		if prop.Max != nil {
			v := *prop.Max
			fd.Rules.Max = &v
		}
		if len(prop.Enum) > 0 {
			fd.Kind = field.KindSelect
			fd.Options = enumOptions(prop.Enum)
		}
	case openapi3.TypeString:
		fd.Kind = stringKind(prop)
		if fd.Kind == field.KindSelect {
			fd.Options = enumOptions(prop.Enum)
		}
		if fd.Kind == field.KindFile {
			fd.Accept = field.Accept(extensionString(prop.Extensions, ExtAccept))
			break
		}
		if prop.MinLength > 0 {
			v := clampInt(prop.MinLength)
			fd.Rules.MinLength = &v
		}
		if prop.MaxLength != nil {
			v := clampInt(*prop.MaxLength)
			fd.Rules.MaxLength = &v
		}
		fd.Rules.Pattern = prop.Pattern
	case openapi3.TypeArray:
		if prop.Items == nil || prop.Items.Value == nil {
			return fd, false
		}
		items := prop.Items.Value
		switch {
		case len(items.Enum) > 0:
			fd.Kind = field.KindCheckboxGroup
			fd.Multiple = true
			fd.Options = enumOptions(items.Enum)
		case items.Format == "binary":
			fd.Kind = field.KindFile
			fd.Accept = field.Accept(extensionString(items.Extensions, ExtAccept))
		default:
			return fd, false
		}
		if prop.MinItems > 0 {
			v := clampInt(prop.MinItems)
			fd.Rules.MinLength = &v
		}
		if prop.MaxItems != nil {
			v := clampInt(*prop.MaxItems)
			fd.Rules.MaxLength = &v
		}
	case openapi3.TypeObject:
		if extensionString(prop.Extensions, ExtKind) == "" {
			return fd, false
		}
		fd.Kind = field.KindGrid
	default:
		return fd, false
	}

	if override := field.Kind(extensionString(prop.Extensions, ExtKind)); override.Valid() {
		fd.Kind = override
	}
	return fd, true
}

func stringKind(prop *openapi3.Schema) field.Kind {
	switch {
	case len(prop.Enum) > 0:
		return field.KindSelect
	case prop.Format == "date":
		return field.KindDate
	case prop.Format == "time":
		return field.KindTime
	case prop.Format == "binary":
		return field.KindFile
	case prop.Format == "textarea":
		return field.KindTextArea
	case prop.MaxLength != nil && *prop.MaxLength > textareaThreshold:
		return field.KindTextArea
	case prop.MaxLength == nil && prop.Format == "":
		return field.KindTextArea
	default:
		return field.KindText
	}
}

func enumOptions(values []any) []field.Option {
	out := make([]field.Option, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		label := fmt.Sprint(v)
		if s, ok := v.(string); ok {
			label = humanizeEnum(s)
		}
		out = append(out, field.Option{Label: label, Value: v})
	}
	return out
}

func humanizeEnum(value string) string {
	value = strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(value))
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + strings.ToLower(value[1:])
}

func firstType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	for _, t := range types.Slice() {
		if t != openapi3.TypeNull {
			return t
		}
	}
	return ""
}

func extensionString(ext map[string]any, key string) string {
	if s, ok := ext[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func extensionNumber(ext map[string]any, key string) float64 {
	switch v := ext[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return math.MaxFloat64
}

func clampInt(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
