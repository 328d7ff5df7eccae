package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"newsroom/api/internal/enrich"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/threads"
)

// Source is the external content provider. Failures are partial-failure
// signals, never a pipeline abort.
type Source interface {
	Fetch(ctx context.Context, origin, sort string, limit int) ([]feed.RawItem, error)
}

// Sink receives the durable write for each item that survives matching.
type Sink interface {
	StoreEnriched(ctx context.Context, item feed.EnrichedItem) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, item feed.EnrichedItem) error

func (f SinkFunc) StoreEnriched(ctx context.Context, item feed.EnrichedItem) error {
	return f(ctx, item)
}

// Callbacks is the observer surface exposed to the UI layer. OnItem fires at
// most once per accepted item, in delivery order; OnError and OnLoading are
// advisory, not control flow.
type Callbacks struct {
	OnItem    func(feed.EnrichedItem)
	OnError   func(error)
	OnLoading func(bool)
}

// Config enumerates the caller-tunable pipeline settings.
type Config struct {
	Origins            []string
	Sort               string
	FetchLimit         int
	MaxItemsInFlight   int
	PublishingInterval time.Duration
}

// ErrAlreadyRunning is returned by Start on a running pipeline.
var ErrAlreadyRunning = errors.New("pipeline already running")

// ErrNoOrigins is returned when Start is called without configured origins.
var ErrNoOrigins = errors.New("no origins configured")

// Pipeline is the single logical ingestion pipeline: one fetch loop, one
// rate-limited queue consumer, explicit Start/Stop lifecycle.
type Pipeline struct {
	queue       *Queue
	enricher    *enrich.Enricher
	matcher     *threads.Matcher
	threadStore *threads.Store
	source      Source
	sink        Sink
	grace       time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPipeline wires the queue, enrichment stage, matcher, thread store,
// content source, and durable sink.
func NewPipeline(queue *Queue, enricher *enrich.Enricher, matcher *threads.Matcher, threadStore *threads.Store, source Source, sink Sink, grace time.Duration) *Pipeline {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Pipeline{
		queue:       queue,
		enricher:    enricher,
		matcher:     matcher,
		threadStore: threadStore,
		source:      source,
		sink:        sink,
		grace:       grace,
	}
}

// Start launches the fetch loop and the queue consumer. Returns ErrNoOrigins
// when the configuration makes the pipeline a no-op.
func (p *Pipeline) Start(cb Callbacks, cfg Config) error {
	if len(cfg.Origins) == 0 {
		log.Printf("pipeline: start rejected, no origins configured")
		return ErrNoOrigins
	}
	if cfg.PublishingInterval <= 0 {
		cfg.PublishingInterval = 30 * time.Second
	}
	if cfg.Sort == "" {
		cfg.Sort = "hot"
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 25
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, cb, cfg)
	return nil
}

// Stop cancels the loops and drains in-flight callbacks, bounded by the
// grace period. An overrun proceeds anyway and is logged.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(p.grace):
		log.Printf("pipeline: stop grace period elapsed with incomplete drain")
	}
}

// Running reports whether the pipeline loops are active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) run(ctx context.Context, cb Callbacks, cfg Config) {
	defer close(p.done)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.fetchLoop(ctx, cb, cfg)
	}()
	go func() {
		defer wg.Done()
		p.queue.Consume(ctx, cfg.PublishingInterval, func(item feed.RawItem) error {
			return p.process(ctx, cb, item)
		})
	}()

	wg.Wait()
}

// fetchLoop pulls from every origin once per refill interval. The refill
// cadence is sized so the queue consumer can keep up: one publishing interval
// per in-flight slot.
func (p *Pipeline) fetchLoop(ctx context.Context, cb Callbacks, cfg Config) {
	slots := cfg.MaxItemsInFlight
	if slots <= 0 {
		slots = 1
	}
	refill := cfg.PublishingInterval * time.Duration(slots)

	p.fetchOnce(ctx, cb, cfg)

	ticker := time.NewTicker(refill)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchOnce(ctx, cb, cfg)
		}
	}
}

func (p *Pipeline) fetchOnce(ctx context.Context, cb Callbacks, cfg Config) {
	if cb.OnLoading != nil {
		cb.OnLoading(true)
		defer cb.OnLoading(false)
	}

	for _, origin := range cfg.Origins {
		items, err := p.source.Fetch(ctx, origin, cfg.Sort, cfg.FetchLimit)
		if err != nil {
			// Transient by contract: log, surface, continue with the rest.
			log.Printf("pipeline: fetch %s failed: %v", origin, err)
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("fetching %s failed, will retry on the next cycle", origin))
			}
			continue
		}
		accepted := p.queue.Enqueue(ctx, items)
		log.Printf("pipeline: fetched %d items from %s, accepted %d", len(items), origin, accepted)
	}
}

// process runs one delivered item through enrichment, matching, the thread
// store, and the durable sink.
func (p *Pipeline) process(ctx context.Context, cb Callbacks, raw feed.RawItem) error {
	enriched := p.enricher.Enrich(ctx, raw)

	decision := p.matcher.Classify(enriched, p.threadStore.Active())
	switch decision.Kind {
	case threads.DecisionDuplicate:
		log.Printf("pipeline: item %s is a duplicate of thread %s, dropped", raw.ID, decision.ThreadID)
		return nil
	case threads.DecisionUpdate:
		thread, err := p.threadStore.Append(decision.ThreadID, enriched, decision.UpdateKind)
		if err != nil {
			// Thread raced into archival; fall back to a fresh thread.
			log.Printf("pipeline: append to thread %s failed (%v), starting new thread", decision.ThreadID, err)
			thread = p.threadStore.Create(enriched)
			enriched.ThreadID = thread.ID
			break
		}
		enriched.ThreadID = thread.ID
		enriched.IsUpdate = true
		enriched.UpdateKind = decision.UpdateKind
	default:
		thread := p.threadStore.Create(enriched)
		enriched.ThreadID = thread.ID
	}

	if p.sink != nil {
		if err := p.sink.StoreEnriched(ctx, enriched); err != nil {
			// Data-loss risk: the item stays visible in memory but is not
			// durable. Logged loudly, pipeline keeps running.
			log.Printf("pipeline: DURABLE WRITE FAILED for item %s at stage store: %v", raw.ID, err)
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("item %s could not be stored durably", raw.ID))
			}
		}
	}

	if cb.OnItem != nil {
		cb.OnItem(enriched)
	}
	return nil
}
