package threads

import (
	"log"
	"strings"

	"newsroom/api/internal/feed"
)

// DecisionKind is the matcher's three-way outcome.
type DecisionKind string

const (
	DecisionNewThread DecisionKind = "new_thread"
	DecisionUpdate    DecisionKind = "update"
	DecisionDuplicate DecisionKind = "duplicate"
)

// Decision is the classification of one item against the active threads.
type Decision struct {
	Kind       DecisionKind
	ThreadID   string
	UpdateKind feed.UpdateKind
	Similarity float64
	Degraded   bool // similarity computation failed; forced new thread
}

// MatcherConfig holds the tunable decision boundaries. The four-way update
// taxonomy is fixed; these numbers are not invariants.
type MatcherConfig struct {
	DuplicateThreshold   float64 // max similarity above which the item is a duplicate
	UpdateThreshold      float64 // max similarity above which the item updates a thread
	ClarificationOverlap float64 // overlap at which an update is a clarification
	DevelopmentFactor    float64 // priority multiple of the thread average for new_development
}

// DefaultMatcherConfig returns the tuned defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		DuplicateThreshold:   0.85,
		UpdateThreshold:      0.40,
		ClarificationOverlap: 0.75,
		DevelopmentFactor:    1.25,
	}
}

// Matcher classifies enriched items against the active thread set.
type Matcher struct {
	sim Similarity
	cfg MatcherConfig
}

// NewMatcher builds a matcher; a nil similarity gets the token-overlap
// default.
func NewMatcher(sim Similarity, cfg MatcherConfig) *Matcher {
	if sim == nil {
		sim = TokenOverlap{}
	}
	if cfg.DuplicateThreshold == 0 {
		cfg = DefaultMatcherConfig()
	}
	return &Matcher{sim: sim, cfg: cfg}
}

var correctionSignals = []string{
	"correction", "corrects", "retraction", "retracts", "retracted", "debunk",
}

// Classify compares the item against every active thread and returns the
// decision. Deterministic for identical inputs. Similarity failure degrades
// to a new thread rather than blocking the pipeline.
func (m *Matcher) Classify(item feed.EnrichedItem, active []feed.Thread) Decision {
	itemText := item.Raw.Title + " " + item.Raw.Body

	var (
		best      *feed.Thread
		bestScore float64
		scored    bool
	)

	for i := range active {
		thread := active[i]
		repText := thread.Title + " " + thread.Summary
		score, err := m.sim.Score(itemText, repText)
		if err != nil {
			// Missing content on either side; skip this pair. If nothing at
			// all scores, the matcher degrades below.
			continue
		}
		scored = true

		if best == nil || score > bestScore {
			best = &active[i]
			bestScore = score
			continue
		}
		// Tie-break: freshest context wins.
		if score == bestScore && thread.LastUpdateAt.After(best.LastUpdateAt) {
			best = &active[i]
		}
	}

	if !scored {
		if len(active) > 0 {
			log.Printf("threads: similarity degraded for item %s, forcing new thread", item.Raw.ID)
			return Decision{Kind: DecisionNewThread, Degraded: true}
		}
		return Decision{Kind: DecisionNewThread}
	}

	switch {
	case bestScore > m.cfg.DuplicateThreshold:
		return Decision{Kind: DecisionDuplicate, ThreadID: best.ID, Similarity: bestScore}
	case bestScore > m.cfg.UpdateThreshold:
		return Decision{
			Kind:       DecisionUpdate,
			ThreadID:   best.ID,
			UpdateKind: m.updateKind(item, *best, bestScore),
			Similarity: bestScore,
		}
	default:
		return Decision{Kind: DecisionNewThread, Similarity: bestScore}
	}
}

// updateKind sub-classifies an update. Precedence: correction, then
// new_development, then clarification, then follow_up.
func (m *Matcher) updateKind(item feed.EnrichedItem, thread feed.Thread, similarity float64) feed.UpdateKind {
	text := strings.ToLower(item.Raw.Title + " " + item.Raw.Body)
	for _, signal := range correctionSignals {
		if strings.Contains(text, signal) {
			return feed.UpdateCorrection
		}
	}

	newTopics := hasNewTopic(item.Topics, thread.Topics)
	if newTopics && item.Priority > thread.AvgPriority*m.cfg.DevelopmentFactor {
		return feed.UpdateNewDevelopment
	}

	if similarity >= m.cfg.ClarificationOverlap && !newTopics {
		return feed.UpdateClarification
	}

	return feed.UpdateFollowUp
}

func hasNewTopic(itemTopics, threadTopics []string) bool {
	known := map[string]struct{}{}
	for _, t := range threadTopics {
		known[t] = struct{}{}
	}
	for _, t := range itemTopics {
		if _, ok := known[t]; !ok {
			return true
		}
	}
	return false
}
