package threads

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNoContent is returned when either side yields no usable tokens; the
// matcher treats it as a degradation signal and forces a new thread.
var ErrNoContent = errors.New("no content to compare")

// Similarity scores the textual closeness of two contents in [0,1]. Must be
// deterministic for identical inputs.
type Similarity interface {
	Score(a, b string) (float64, error)
}

// TokenOverlap is the default similarity: Jaccard overlap of normalized
// token sets. Dependency-free and deterministic.
type TokenOverlap struct{}

func (TokenOverlap) Score(a, b string) (float64, error) {
	left := tokenSet(a)
	right := tokenSet(b)
	if len(left) == 0 || len(right) == 0 {
		return 0, ErrNoContent
	}

	intersection := 0
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	return float64(intersection) / float64(union), nil
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "with": {}, "this": {},
	"from": {}, "have": {}, "are": {}, "was": {}, "has": {}, "but": {},
	"not": {}, "you": {}, "all": {}, "its": {}, "will": {}, "after": {},
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, token := range tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}

func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() < 3 {
			current.Reset()
			return
		}
		token := current.String()
		current.Reset()
		if _, stop := stopwords[token]; stop {
			return
		}
		tokens = append(tokens, token)
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
