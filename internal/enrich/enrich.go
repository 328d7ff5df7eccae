// Package enrich computes derived signals (priority, quality, sentiment,
// topics) for raw items. The scoring model is pluggable; the stage itself is
// a pure function of its input bounded by a timeout.
package enrich

import (
	"context"
	"log"
	"time"

	"newsroom/api/internal/feed"
)

// Signals is what a scoring model produces for one item.
type Signals struct {
	Priority  float64
	Quality   float64
	Sentiment feed.Sentiment
	Topics    []string
}

// Model scores a single raw item. Implementations must be deterministic for
// identical inputs and honour ctx cancellation.
type Model interface {
	Score(ctx context.Context, item feed.RawItem) (Signals, error)
}

// Enricher runs a model with a hard timeout. On timeout or model failure the
// item proceeds with neutral defaults rather than failing the pipeline.
type Enricher struct {
	model   Model
	timeout time.Duration
}

// New creates an Enricher. A nil model always yields neutral defaults.
func New(model Model, timeout time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Enricher{model: model, timeout: timeout}
}

// Enrich scores the item. It never returns an error: enrichment is
// best-effort and degradation is encoded in the Defaulted flag.
func (e *Enricher) Enrich(ctx context.Context, item feed.RawItem) feed.EnrichedItem {
	enriched := feed.EnrichedItem{
		Raw:        item,
		EnrichedAt: time.Now().UTC(),
	}

	signals, ok := e.score(ctx, item)
	if !ok {
		enriched.Priority = 0.5
		enriched.Quality = 0.5
		enriched.Sentiment = feed.SentimentNeutral
		enriched.Defaulted = true
		return enriched
	}

	enriched.Priority = clamp01(signals.Priority)
	enriched.Quality = clamp01(signals.Quality)
	enriched.Sentiment = signals.Sentiment
	if enriched.Sentiment == "" {
		enriched.Sentiment = feed.SentimentNeutral
	}
	enriched.Topics = signals.Topics
	return enriched
}

func (e *Enricher) score(ctx context.Context, item feed.RawItem) (Signals, bool) {
	if e.model == nil {
		return Signals{}, false
	}

	scoreCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		signals Signals
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		signals, err := e.model.Score(scoreCtx, item)
		ch <- result{signals: signals, err: err}
	}()

	select {
	case <-scoreCtx.Done():
		log.Printf("enrich: timeout scoring item %s, using neutral defaults", item.ID)
		return Signals{}, false
	case res := <-ch:
		if res.err != nil {
			log.Printf("enrich: model failed for item %s: %v, using neutral defaults", item.ID, res.err)
			return Signals{}, false
		}
		return res.signals, true
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
