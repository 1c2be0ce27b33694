package caption_test

import (
	"strings"
	"testing"

	"github.com/mirepoix-app/mirepoix/internal/caption"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
)

// stubMatcher corrects via a fixed lookup table, keyed on the lowercased
// input window.
type stubMatcher struct {
	table map[string]string
}

func (m *stubMatcher) Match(word string, _ []string) (string, float64, bool) {
	if term, ok := m.table[strings.ToLower(word)]; ok {
		return term, 0.9, true
	}
	return word, 0, false
}

func TestCorrect_ReplacesMatchedTerms(t *testing.T) {
	t.Parallel()

	c := caption.NewCorrector(
		[]string{"mirepoix", "béchamel"},
		&stubMatcher{table: map[string]string{
			"mere pwah": "mirepoix",
			"beshamel":  "béchamel",
		}},
	)

	got, corrections := c.Correct("add the mere pwah then the beshamel")
	if want := "add the mirepoix then the béchamel"; got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
	if len(corrections) != 2 {
		t.Fatalf("corrections = %d, want 2", len(corrections))
	}
	if corrections[0].Original != "mere pwah" || corrections[0].Corrected != "mirepoix" {
		t.Errorf("first correction = %+v", corrections[0])
	}
}

func TestCorrect_LongestWindowWins(t *testing.T) {
	t.Parallel()

	// Both the two-word window and its first word alone would match; the
	// two-word replacement must win.
	c := caption.NewCorrector(
		[]string{"crème fraîche", "crème"},
		&stubMatcher{table: map[string]string{
			"krem fresh": "crème fraîche",
			"krem":       "crème",
		}},
	)

	got, corrections := c.Correct("stir in the krem fresh")
	if want := "stir in the crème fraîche"; got != want {
		t.Errorf("Correct = %q, want %q", got, want)
	}
	if len(corrections) != 1 {
		t.Errorf("corrections = %d, want 1", len(corrections))
	}
}

func TestCorrect_ExactTermNotRecorded(t *testing.T) {
	t.Parallel()

	c := caption.NewCorrector(
		[]string{"risotto"},
		&stubMatcher{table: map[string]string{"risotto": "risotto"}},
	)

	got, corrections := c.Correct("the risotto is done")
	if got != "the risotto is done" {
		t.Errorf("Correct = %q", got)
	}
	if len(corrections) != 0 {
		t.Errorf("exact matches must not be recorded as corrections, got %+v", corrections)
	}
}

func TestCorrect_EmptyVocabularyPassesThrough(t *testing.T) {
	t.Parallel()

	c := caption.NewCorrector(nil, nil)
	got, corrections := c.Correct("whatever was said")
	if got != "whatever was said" || corrections != nil {
		t.Errorf("pass-through broken: %q %+v", got, corrections)
	}
}

func TestCorrect_PhoneticDefaults(t *testing.T) {
	t.Parallel()

	// End to end with the real matcher.
	c := caption.NewCorrector([]string{"mirepoix", "risotto"}, nil)
	got, corrections := c.Correct("start the rissoto")
	if !strings.Contains(got, "risotto") {
		t.Errorf("Correct = %q, want risotto substituted", got)
	}
	if len(corrections) != 1 {
		t.Errorf("corrections = %d, want 1", len(corrections))
	}
}

func TestVocabulary(t *testing.T) {
	t.Parallel()

	vocab := caption.Vocabulary(recipe.Recipe{
		ID:    "r",
		Title: "Mushroom Risotto",
		Steps: []string{
			"Toast the arborio rice, then add stock.",
			"Stir in the parmesan and serve.",
		},
	})

	has := func(term string) bool {
		for _, v := range vocab {
			if v == term {
				return true
			}
		}
		return false
	}

	if !has("Mushroom Risotto") {
		t.Error("title missing from vocabulary")
	}
	for _, want := range []string{"arborio", "rice", "stock", "parmesan"} {
		if !has(want) {
			t.Errorf("vocabulary missing %q (got %v)", want, vocab)
		}
	}
	if has("in") {
		t.Error("words under four letters should be excluded")
	}
	for _, banned := range []string{"the", "then", "serve", "add"} {
		if has(banned) {
			t.Errorf("stopword %q leaked into vocabulary", banned)
		}
	}
}
