// Package cases loads and validates patient case definitions.
package cases

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pavelanni/patientsim/internal/model"
)

//go:embed data/*.json
var builtinFS embed.FS

// DefaultCaseID is used when a request does not name a case.
const DefaultCaseID = "ms-esposito"

// ErrUnknownCase is returned by Registry.Get for an id that is not loaded.
var ErrUnknownCase = errors.New("unknown case")

// Parse decodes a case from JSON, checks it against the case schema,
// normalises keywords and validates it.
func Parse(data []byte) (model.PatientCase, error) {
	var c model.PatientCase
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return c, fmt.Errorf("decode case: %w", err)
	}
	if err := checkSchema(doc); err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode case: %w", err)
	}
	normalize(&c)
	if err := Validate(c); err != nil {
		return c, err
	}
	return c, nil
}

func normalize(c *model.PatientCase) {
	for i := range c.MustElicitFacts {
		f := &c.MustElicitFacts[i]
		for j, kw := range f.Keywords {
			f.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
}

// Validate reports every authoring error in a case. Grading assumes a case
// has passed validation; it never masks a broken case as a low score.
func Validate(c model.PatientCase) error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if len(c.MustElicitFacts) == 0 {
		errs = append(errs, errors.New("no must-elicit facts"))
	}

	ids := make(map[string]bool, len(c.MustElicitFacts))
	for i, f := range c.MustElicitFacts {
		switch {
		case f.ID == "":
			errs = append(errs, fmt.Errorf("fact %d: missing id", i))
			continue
		case ids[f.ID]:
			errs = append(errs, fmt.Errorf("fact %q: duplicate id", f.ID))
		}
		ids[f.ID] = true

		if !hasKeyword(f.Keywords) {
			errs = append(errs, fmt.Errorf("fact %q: no keywords", f.ID))
		}
		if !f.Category.Valid() {
			errs = append(errs, fmt.Errorf("fact %q: unknown category %q", f.ID, f.Category))
		}
		if f.DisplayText() == "" {
			errs = append(errs, fmt.Errorf("fact %q: missing label", f.ID))
		}
	}

	for i, qa := range c.QAScript {
		if len(qa.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("qaScript %d: no patterns", i))
		}
		for _, id := range qa.Facts {
			if !ids[id] {
				errs = append(errs, fmt.Errorf("qaScript %d: references unknown fact %q", i, id))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("case %q: %w", c.ID, errors.Join(errs...))
	}
	return nil
}

func hasKeyword(keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

// Registry holds the loaded cases keyed by id.
type Registry struct {
	mu    sync.RWMutex
	cases map[string]model.PatientCase
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cases: make(map[string]model.PatientCase)}
}

// Builtin returns a registry preloaded with the embedded cases.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	entries, err := fs.ReadDir(builtinFS, "data")
	if err != nil {
		return nil, fmt.Errorf("read embedded cases: %w", err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("data/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		r.Add(c)
	}
	return r, nil
}

// LoadFiles parses and adds case files, replacing cases with the same id.
func (r *Registry) LoadFiles(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		c, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, exists := r.lookup(c.ID); exists {
			slog.Warn("case file overrides existing case", "path", path, "case_id", c.ID)
		}
		r.Add(c)
		slog.Info("loaded case", "path", path, "case_id", c.ID, "facts", len(c.MustElicitFacts))
	}
	return nil
}

// Add stores a case. The caller is responsible for validating it.
func (r *Registry) Add(c model.PatientCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
}

// Get returns a case by id.
func (r *Registry) Get(id string) (model.PatientCase, error) {
	c, ok := r.lookup(id)
	if !ok {
		return model.PatientCase{}, fmt.Errorf("%w: %q", ErrUnknownCase, id)
	}
	return c, nil
}

func (r *Registry) lookup(id string) (model.PatientCase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	return c, ok
}

// List returns all cases ordered by id.
func (r *Registry) List() []model.PatientCase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PatientCase, 0, len(r.cases))
	for _, c := range r.cases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
