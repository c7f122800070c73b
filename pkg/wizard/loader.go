package wizard

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Store holds compiled wizard definitions keyed by id.
type Store struct {
	definitions map[string]*Definition
	sources     map[string]string
}

// NewStore builds a store from definitions declared in Go. Each definition
// is compiled; duplicate ids are rejected.
func NewStore(defs ...*Definition) (*Store, error) {
	store := &Store{
		definitions: make(map[string]*Definition, len(defs)),
		sources:     make(map[string]string, len(defs)),
	}
	for _, def := range defs {
		if err := store.add(def, "go"); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// LoadFS walks fsys and parses every JSON/YAML file holding a `wizards:` map.
// A nil fsys yields an empty store.
func LoadFS(fsys fs.FS) (*Store, error) {
	store, _ := NewStore()
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("wizard: read %s: %w", path, err)
		}
		doc, err := parseDocument(data, path)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(doc.Wizards))
		for id := range doc.Wizards {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, rawID := range ids {
			id := strings.TrimSpace(rawID)
			if id == "" {
				return fmt.Errorf("wizard: file %s defines an empty wizard id", path)
			}
			def := doc.Wizards[rawID]
			def.ID = id
			if err := store.add(&def, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) add(def *Definition, source string) error {
	if def == nil {
		return fmt.Errorf("wizard: nil definition (source %s)", source)
	}
	if prev, exists := s.sources[def.ID]; exists {
		return fmt.Errorf("wizard: duplicate wizard %q (%s and %s)", def.ID, prev, source)
	}
	if err := def.Compile(); err != nil {
		return fmt.Errorf("wizard: %s: %w", source, err)
	}
	s.definitions[def.ID] = def
	s.sources[def.ID] = source
	return nil
}

// Definition returns the wizard with id.
func (s *Store) Definition(id string) (*Definition, bool) {
	if s == nil {
		return nil, false
	}
	def, ok := s.definitions[id]
	return def, ok
}

// IDs lists the loaded wizard ids in sorted order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether the store holds any definitions.
func (s *Store) Empty() bool {
	return s == nil || len(s.definitions) == 0
}

type documentFile struct {
	Wizards map[string]Definition `json:"wizards" yaml:"wizards"`
}

func parseDocument(data []byte, source string) (documentFile, error) {
	var doc documentFile
	if len(strings.TrimSpace(string(data))) == 0 {
		return documentFile{}, fmt.Errorf("wizard: file %s is empty", source)
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	doc = documentFile{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return documentFile{}, fmt.Errorf("wizard: parse %s: %w", source, err)
	}
	return doc, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
