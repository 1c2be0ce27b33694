// Package yamlstore provides a YAML-file-backed recipe catalog for
// deployments without PostgreSQL: demos, development, and single-user
// installs that ship their recipes as files.
//
// The whole catalog lives in one YAML file loaded at startup. MarkPrepared
// updates are kept in memory only; similarity falls back to word overlap
// between step texts, which is crude but dependency-free.
package yamlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mirepoix-app/mirepoix/internal/recipe"
)

var _ recipe.Provider = (*Store)(nil)

// CatalogFile is the top-level structure of a recipe catalog YAML file.
//
// Example:
//
//	catalog:
//	  name: "Weeknight favourites"
//	recipes:
//	  - id: shakshuka-2
//	    title: Shakshuka
//	    servings: 2
//	    steps:
//	      - Simmer the tomato sauce.
//	      - Crack an egg into each well.
type CatalogFile struct {
	Catalog CatalogMeta  `yaml:"catalog"`
	Recipes []RecipeFile `yaml:"recipes"`
}

// CatalogMeta holds top-level metadata for a catalog file.
type CatalogMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RecipeFile is the YAML shape of one recipe.
type RecipeFile struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Servings       int      `yaml:"servings"`
	Steps          []string `yaml:"steps"`
	StepTimestamps []string `yaml:"step_timestamps"`
	VideoURL       string   `yaml:"video_url"`
}

// Store is a read-mostly in-memory catalog loaded from a YAML file. Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	recipes map[string]recipe.Recipe
}

// Load reads and validates the catalog YAML file at path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("yamlstore: open catalog %q: %w", path, err)
	}
	defer f.Close()

	store, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("yamlstore: parse catalog %q: %w", path, err)
	}
	return store, nil
}

// LoadFromReader parses catalog YAML from r. Unknown keys are rejected to
// catch typos; every recipe must pass [recipe.Recipe.Validate] and IDs must
// be unique.
func LoadFromReader(r io.Reader) (*Store, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("yamlstore: decode catalog yaml: %w", err)
	}

	recipes := make(map[string]recipe.Recipe, len(cf.Recipes))
	var errs []error
	for i, rf := range cf.Recipes {
		rec := recipe.Recipe{
			ID:             rf.ID,
			Title:          rf.Title,
			Servings:       rf.Servings,
			Steps:          rf.Steps,
			StepTimestamps: rf.StepTimestamps,
			VideoURL:       rf.VideoURL,
		}
		if err := rec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recipes[%d]: %w", i, err))
			continue
		}
		if _, dup := recipes[rec.ID]; dup {
			errs = append(errs, fmt.Errorf("recipes[%d]: duplicate id %q", i, rec.ID))
			continue
		}
		recipes[rec.ID] = rec
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Store{recipes: recipes}, nil
}

// Get implements [recipe.Provider].
func (s *Store) Get(_ context.Context, id string) (recipe.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recipes[id]
	if !ok {
		return recipe.Recipe{}, fmt.Errorf("yamlstore: get %q: %w", id, recipe.ErrNotFound)
	}
	return rec, nil
}

// List returns all recipes ordered by title.
func (s *Store) List(_ context.Context) ([]recipe.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]recipe.Recipe, 0, len(s.recipes))
	for _, rec := range s.recipes {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// MarkPrepared implements [recipe.Provider]. The timestamp is held in memory
// and lost on restart; the YAML file is never rewritten.
func (s *Store) MarkPrepared(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipes[id]
	if !ok {
		return fmt.Errorf("yamlstore: mark prepared %q: %w", id, recipe.ErrNotFound)
	}
	rec.LastPreparedAt = at
	s.recipes[id] = rec
	return nil
}

// Similar implements [recipe.Provider] with word-overlap ranking: recipes
// sharing more distinct step words with the source come first.
func (s *Store) Similar(_ context.Context, id string, limit int) ([]recipe.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.recipes[id]
	if !ok {
		return nil, fmt.Errorf("yamlstore: similar %q: %w", id, recipe.ErrNotFound)
	}
	if limit <= 0 {
		return []recipe.Recipe{}, nil
	}

	srcWords := wordSet(src)

	type scored struct {
		rec   recipe.Recipe
		score int
	}
	var candidates []scored
	for _, rec := range s.recipes {
		if rec.ID == id {
			continue
		}
		overlap := 0
		for w := range wordSet(rec) {
			if _, shared := srcWords[w]; shared {
				overlap++
			}
		}
		candidates = append(candidates, scored{rec: rec, score: overlap})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.Title < candidates[j].rec.Title
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]recipe.Recipe, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

// wordSet collects the distinct lowercased words of four or more letters from
// a recipe's title and steps.
func wordSet(rec recipe.Recipe) map[string]struct{} {
	words := map[string]struct{}{}
	collect := func(text string) {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,;:!?()\"'")
			if len([]rune(w)) >= 4 {
				words[w] = struct{}{}
			}
		}
	}
	collect(rec.Title)
	for _, step := range rec.Steps {
		collect(step)
	}
	return words
}
