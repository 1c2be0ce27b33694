// Package recipe defines the recipe model consumed by the cooking session
// engine and the Provider contract for recipe storage backends.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a recipe does not exist.
var ErrNotFound = errors.New("recipe: not found")

// Recipe is one stored recipe. Steps are ordered instruction texts;
// StepTimestamps, when present, has the same length as Steps and carries the
// "m:ss" position of each step in the linked video.
type Recipe struct {
	ID             string
	Title          string
	Servings       int
	Steps          []string
	StepTimestamps []string
	VideoURL       string
	LastPreparedAt time.Time
}

// VideoLinked reports whether the recipe has an associated companion video.
func (r Recipe) VideoLinked() bool { return r.VideoURL != "" }

// Validate checks structural integrity before a recipe is used to seed a
// cooking session.
func (r Recipe) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if r.Title == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if len(r.Steps) == 0 {
		errs = append(errs, errors.New("steps must not be empty"))
	}
	if len(r.StepTimestamps) > 0 && len(r.StepTimestamps) != len(r.Steps) {
		errs = append(errs, fmt.Errorf("step timestamps length %d does not match steps length %d",
			len(r.StepTimestamps), len(r.Steps)))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recipe: invalid: %w", err)
	}
	return nil
}

// Provider is the storage contract for recipes.
type Provider interface {
	// Get fetches one recipe by ID.
	Get(ctx context.Context, id string) (Recipe, error)

	// MarkPrepared records that the recipe was cooked at the given time.
	// Called fire-and-forget after a session ends; failures are logged by the
	// caller and never block the session.
	MarkPrepared(ctx context.Context, id string, at time.Time) error

	// Similar returns up to limit recipes ranked by semantic similarity to
	// the given recipe.
	Similar(ctx context.Context, id string, limit int) ([]Recipe, error)
}
