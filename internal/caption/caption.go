// Package caption corrects recipe terminology in live caption text.
//
// Speech transcription reliably butchers cooking vocabulary, so captions are
// aligned against the vocabulary of the active recipe before being shown:
// every word (and short n-gram) of the caption is tested phonetically against
// the recipe's terms and replaced when it matches one closely enough.
// Correction only touches the displayed text, never what was sent to or heard
// by the assistant.
package caption

import (
	"strings"

	"github.com/mirepoix-app/mirepoix/internal/caption/phonetic"
	"github.com/mirepoix-app/mirepoix/internal/recipe"
)

// Correction records one replacement made in a caption.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Matcher tests a word or n-gram against a vocabulary. Satisfied by
// [phonetic.Matcher].
type Matcher interface {
	Match(word string, vocab []string) (corrected string, confidence float64, matched bool)
}

// Corrector aligns caption text against a fixed vocabulary. Read-only after
// construction, safe for concurrent use.
type Corrector struct {
	matcher  Matcher
	vocab    []string
	maxWords int
}

// NewCorrector builds a Corrector over vocab. A nil matcher uses
// [phonetic.New] defaults. An empty vocabulary produces a pass-through
// corrector.
func NewCorrector(vocab []string, matcher Matcher) *Corrector {
	if matcher == nil {
		matcher = phonetic.New()
	}
	maxWords := 1
	for _, term := range vocab {
		if n := len(strings.Fields(term)); n > maxWords {
			maxWords = n
		}
	}
	return &Corrector{matcher: matcher, vocab: vocab, maxWords: maxWords}
}

// Correct returns text with recognised vocabulary substituted, plus the list
// of corrections applied. At each position the longest matching n-gram wins,
// so multi-word terms beat partial single-word matches.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.vocab) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.vocab)
			if !ok {
				continue
			}
			if strings.EqualFold(window, term) {
				// Already right; emit as-is without recording a correction.
				output = append(output, tokens[i:i+n]...)
			} else {
				output = append(output, strings.Fields(term)...)
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// stopwords are common words excluded from recipe vocabularies; correcting
// toward them causes more harm than leaving captions alone.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "into": {}, "until": {}, "then": {},
	"them": {}, "over": {}, "from": {}, "each": {}, "about": {}, "when": {},
	"your": {}, "this": {}, "that": {}, "minutes": {}, "minute": {},
	"seconds": {}, "large": {}, "small": {}, "medium": {}, "heat": {},
	"add": {}, "cook": {}, "stir": {}, "remove": {}, "place": {}, "serve": {},
}

// Vocabulary extracts the terms worth correcting toward from a recipe: the
// full title plus every distinct step word of four or more letters that is
// not a stopword.
func Vocabulary(rec recipe.Recipe) []string {
	seen := map[string]struct{}{}
	var vocab []string

	add := func(term string) {
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		vocab = append(vocab, term)
	}

	if strings.TrimSpace(rec.Title) != "" {
		add(strings.TrimSpace(rec.Title))
	}
	for _, step := range rec.Steps {
		for _, word := range strings.Fields(step) {
			word = strings.Trim(word, ".,;:!?()\"'")
			if len([]rune(word)) < 4 {
				continue
			}
			if _, skip := stopwords[strings.ToLower(word)]; skip {
				continue
			}
			add(word)
		}
	}
	return vocab
}
