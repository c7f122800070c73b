package review

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formflow/pkg/wizard"
)

// DefaultTemplate is the built-in plain-text summary.
const DefaultTemplate = "summary.tpl"

//go:embed templates/*.tpl
var embedded embed.FS

// Option configures a Renderer.
type Option func(*config)

type config struct {
	baseDir  string
	files    fs.FS
	template string
}

// WithBaseDir loads templates from a directory before the built-in ones.
func WithBaseDir(dir string) Option {
	return func(cfg *config) {
		cfg.baseDir = strings.TrimSpace(dir)
	}
}

// WithFS loads templates from files before the built-in ones.
func WithFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.files = files
	}
}

// WithTemplate selects the template rendered by Render.
func WithTemplate(name string) Option {
	return func(cfg *config) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.template = trimmed
		}
	}
}

// Renderer renders summaries through a pongo2 template set.
type Renderer struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
	name      string
}

// New builds a Renderer. Overrides are searched before the embedded
// templates, so a custom summary.tpl replaces the default.
func New(options ...Option) (*Renderer, error) {
	cfg := &config{template: DefaultTemplate}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	var loaders []pongo2.TemplateLoader
	if cfg.baseDir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(cfg.baseDir)
		if err != nil {
			return nil, fmt.Errorf("review: create local loader: %w", err)
		}
		loaders = append(loaders, loader)
	}
	if cfg.files != nil {
		loaders = append(loaders, pongo2.NewFSLoader(cfg.files))
	}
	builtin, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("review: embedded templates: %w", err)
	}
	loaders = append(loaders, pongo2.NewFSLoader(builtin))

	return &Renderer{
		set:       pongo2.NewSet("formflow-review", loaders...),
		templates: make(map[string]*pongo2.Template),
		name:      cfg.template,
	}, nil
}

// RenderSession builds the summary of s and renders it.
func (r *Renderer) RenderSession(s *wizard.Session, out ...io.Writer) (string, error) {
	if s == nil {
		return "", errors.New("review: session is nil")
	}
	return r.Render(Build(s), out...)
}

// Render executes the configured template with summary.
func (r *Renderer) Render(summary Summary, out ...io.Writer) (string, error) {
	if r == nil || r.set == nil {
		return "", errors.New("review: renderer is nil")
	}
	tmpl, err := r.template(r.name)
	if err != nil {
		return "", err
	}
	return execute(tmpl, summary, r.name, out)
}

// RenderString renders an inline template with summary.
func (r *Renderer) RenderString(content string, summary Summary, out ...io.Writer) (string, error) {
	if r == nil || r.set == nil {
		return "", errors.New("review: renderer is nil")
	}
	tmpl, err := r.set.FromString(content)
	if err != nil {
		return "", fmt.Errorf("review: parse template string: %w", err)
	}
	return execute(tmpl, summary, "inline", out)
}

func execute(tmpl *pongo2.Template, summary Summary, name string, out []io.Writer) (string, error) {
	ctx := toContext(summary)
	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(ctx, &buf); err != nil {
		return "", fmt.Errorf("review: execute template %q: %w", name, err)
	}
	rendered := buf.String()
	for _, w := range out {
		if _, err := io.WriteString(w, rendered); err != nil {
			return "", err
		}
	}
	return rendered, nil
}

func (r *Renderer) template(name string) (*pongo2.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.templates[name]; ok {
		return tmpl, nil
	}
	tmpl, err := r.set.FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("review: load template %q: %w", name, err)
	}
	r.templates[name] = tmpl
	return tmpl, nil
}

// toContext exposes the summary under its json field names and adds the
// label column width.
func toContext(summary Summary) pongo2.Context {
	width := 0
	sections := make([]map[string]any, 0, len(summary.Sections))
	for _, section := range summary.Sections {
		entries := make([]map[string]any, 0, len(section.Entries))
		for _, entry := range section.Entries {
			if n := utf8.RuneCountInString(entry.Label); n > width {
				width = n
			}
			entries = append(entries, map[string]any{
				"name":  entry.Name,
				"label": entry.Label,
				"value": entry.Value,
				"blank": entry.Blank,
			})
		}
		sections = append(sections, map[string]any{
			"index":   section.Index,
			"id":      section.ID,
			"title":   section.Title,
			"issues":  section.Issues,
			"entries": entries,
		})
	}
	return pongo2.Context{
		"wizard":   summary.WizardID,
		"title":    summary.Title,
		"sections": sections,
		"width":    width,
	}
}
