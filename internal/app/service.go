package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"newsroom/api/internal/config"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/ingest"
	"newsroom/api/internal/maintenance"
	"newsroom/api/internal/search"
	"newsroom/api/internal/store"
	"newsroom/api/internal/threads"
)

type dataStore interface {
	ListLive(ctx context.Context) ([]store.LiveItem, error)
	CountLive(ctx context.Context) (int, error)
	GetLiveItem(ctx context.Context, itemID string) (store.LiveItem, error)
	ListStories(ctx context.Context, filter store.StoryFilter) ([]store.StoryRecord, error)
	CountStories(ctx context.Context) (int, error)
	ClearHistory(ctx context.Context) error
	Ping(ctx context.Context) error
}

type feedPipeline interface {
	Start(cb ingest.Callbacks, cfg ingest.Config) error
	Stop()
	Running() bool
}

type maintainer interface {
	Run(ctx context.Context) (maintenance.Report, error)
	State() maintenance.State
}

type searcher interface {
	Search(q search.Query) search.Response
	IndexItem(item search.ItemRecord)
	IndexThread(t search.ThreadRecord)
	Healthy() bool
}

// Service wires the durable store, the in-memory thread registry, the
// pipeline lifecycle, and the maintenance cycle behind the HTTP surface.
type Service struct {
	store       dataStore
	threadStore *threads.Store
	pipeline    feedPipeline
	maintainer  maintainer
	search      searcher
	cfg         config.Config
}

func NewService(s dataStore, threadStore *threads.Store, pipeline feedPipeline, maintainer maintainer, searchSvc searcher, cfg config.Config) *Service {
	return &Service{
		store:       s,
		threadStore: threadStore,
		pipeline:    pipeline,
		maintainer:  maintainer,
		search:      searchSvc,
		cfg:         cfg,
	}
}

// Ping verifies downstream connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SearchHealthy reports whether the primary search backend is reachable.
// A degraded primary never fails readiness; the FTS fallback still serves.
func (s *Service) SearchHealthy() bool {
	return s.search.Healthy()
}

// FeedItemView is the JSON shape of one live feed entry.
type FeedItemView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Community     string    `json:"community"`
	Body          string    `json:"body"`
	Score         int       `json:"score"`
	CommentCount  int       `json:"commentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	Priority      float64   `json:"priority"`
	Quality       float64   `json:"quality"`
	Sentiment     string    `json:"sentiment"`
	Topics        []string  `json:"topics"`
	PriorityClass string    `json:"priorityClass"`
	Enriched      bool      `json:"enriched"`
	ThreadID      string    `json:"threadId"`
	IsUpdate      bool      `json:"isUpdate"`
	UpdateKind    string    `json:"updateKind,omitempty"`
	ArrivedAt     time.Time `json:"arrivedAt"`
}

// ThreadView is the JSON shape of one story thread.
type ThreadView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	Tone          string    `json:"tone"`
	PriorityClass string    `json:"priorityClass"`
	Topics        []string  `json:"topics"`
	AvgPriority   float64   `json:"avgPriority"`
	Status        string    `json:"status"`
	MemberIDs     []string  `json:"memberIds"`
	MemberCount   int       `json:"memberCount"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdateAt  time.Time `json:"lastUpdateAt"`
}

// StoryView is the JSON shape of one archived story.
type StoryView struct {
	ID            string    `json:"id"`
	SourceItemID  string    `json:"sourceItemId"`
	ThreadID      string    `json:"threadId"`
	Title         string    `json:"title"`
	Narrative     string    `json:"narrative"`
	Tone          string    `json:"tone"`
	PriorityClass string    `json:"priorityClass"`
	Agent         string    `json:"agent"`
	WordCount     int       `json:"wordCount"`
	CharCount     int       `json:"charCount"`
	Topics        []string  `json:"topics"`
	OriginalBrief string    `json:"originalBrief"`
	CreatedAt     time.Time `json:"createdAt"`
	CompletedAt   time.Time `json:"completedAt"`
}

// Feed returns the live feed in arrival order together with its cap.
func (s *Service) Feed(ctx context.Context) (map[string]any, error) {
	items, err := s.store.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	views := make([]FeedItemView, 0, len(items))
	for _, item := range items {
		views = append(views, feedItemView(item))
	}
	return map[string]any{
		"items": views,
		"count": len(views),
		"cap":   s.cfg.LiveFeedCap,
	}, nil
}

// FeedItem returns one live feed entry by id.
func (s *Service) FeedItem(ctx context.Context, itemID string) (FeedItemView, error) {
	item, err := s.store.GetLiveItem(ctx, itemID)
	if err != nil {
		return FeedItemView{}, err
	}
	return feedItemView(item), nil
}

// Threads lists all threads, active first is not guaranteed; callers filter
// by status.
func (s *Service) Threads() []ThreadView {
	all := s.threadStore.All()
	views := make([]ThreadView, 0, len(all))
	for _, t := range all {
		views = append(views, threadView(t))
	}
	return views
}

// Thread returns one thread by id.
func (s *Service) Thread(threadID string) (ThreadView, error) {
	t, ok := s.threadStore.Get(threadID)
	if !ok {
		return ThreadView{}, domainError(http.StatusNotFound, "THREAD_NOT_FOUND", "Thread not found", nil)
	}
	return threadView(t), nil
}

// Stories lists archived stories, newest first.
func (s *Service) Stories(ctx context.Context, filter store.StoryFilter) (map[string]any, error) {
	records, err := s.store.ListStories(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	total, err := s.store.CountStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stories: %w", err)
	}
	views := make([]StoryView, 0, len(records))
	for _, record := range records {
		views = append(views, storyView(record))
	}
	return map[string]any{
		"stories": views,
		"total":   total,
	}, nil
}

// Search proxies to the search facade.
func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

// StartPipelineInput optionally overrides the configured ingestion settings
// for one run.
type StartPipelineInput struct {
	Origins              []string `json:"origins"`
	Sort                 string   `json:"sort"`
	FetchLimit           int      `json:"fetchLimit"`
	PublishingIntervalMS int      `json:"publishingIntervalMs"`
	MaxItemsInFlight     int      `json:"maxItemsInFlight"`
}

// StartPipeline launches ingestion with the configured origins. Accepted
// items flow into the search index as they arrive.
func (s *Service) StartPipeline(input StartPipelineInput) error {
	cb := ingest.Callbacks{
		OnItem: func(item feed.EnrichedItem) {
			s.search.IndexItem(search.ItemRecord{
				ID:            item.Raw.ID,
				Title:         item.Raw.Title,
				Body:          item.Raw.Body,
				Community:     item.Raw.Community,
				ThreadID:      item.ThreadID,
				Sentiment:     string(item.Sentiment),
				PriorityClass: feed.PriorityClass(item.Priority),
				Priority:      item.Priority,
			})
			if t, ok := s.threadStore.Get(item.ThreadID); ok {
				s.search.IndexThread(search.ThreadRecord{
					ID:            t.ID,
					Title:         t.Title,
					Summary:       t.Summary,
					PriorityClass: t.PriorityClass,
					Status:        string(t.Status),
				})
			}
		},
		OnError: func(err error) {
			log.Printf("app: pipeline error: %v", err)
		},
	}
	cfg := ingest.Config{
		Origins:            s.cfg.Origins,
		Sort:               s.cfg.SourceSort,
		FetchLimit:         s.cfg.FetchLimit,
		MaxItemsInFlight:   s.cfg.MaxItemsInFlight,
		PublishingInterval: s.cfg.PublishingInterval,
	}
	if len(input.Origins) > 0 {
		cfg.Origins = input.Origins
	}
	if input.Sort != "" {
		cfg.Sort = input.Sort
	}
	if input.FetchLimit > 0 {
		cfg.FetchLimit = input.FetchLimit
	}
	if input.PublishingIntervalMS > 0 {
		cfg.PublishingInterval = time.Duration(input.PublishingIntervalMS) * time.Millisecond
	}
	if input.MaxItemsInFlight > 0 {
		cfg.MaxItemsInFlight = input.MaxItemsInFlight
	}
	return s.pipeline.Start(cb, cfg)
}

// StopPipeline halts ingestion. Safe to call when already stopped.
func (s *Service) StopPipeline() {
	s.pipeline.Stop()
}

// PipelineStatus reports the lifecycle state for the status endpoint.
func (s *Service) PipelineStatus() map[string]any {
	return map[string]any{
		"running": s.pipeline.Running(),
		"origins": s.cfg.Origins,
	}
}

// RunMaintenance executes one upkeep cycle.
func (s *Service) RunMaintenance(ctx context.Context) (maintenance.Report, error) {
	return s.maintainer.Run(ctx)
}

// MaintenanceState reports the current cycle phase.
func (s *Service) MaintenanceState() maintenance.State {
	return s.maintainer.State()
}

// ClearHistory wipes the story archive. The destructive path demands an
// explicit confirmation flag.
func (s *Service) ClearHistory(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return domainError(http.StatusConflict, "CONFIRMATION_REQUIRED", "Clearing history is irreversible; pass confirm=true", nil)
	}
	if err := s.store.ClearHistory(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	log.Printf("app: story history cleared")
	return nil
}

func feedItemView(item store.LiveItem) FeedItemView {
	topics := item.Topics
	if topics == nil {
		topics = []string{}
	}
	return FeedItemView{
		ID:            item.ID,
		Title:         item.Title,
		Author:        item.Author,
		Community:     item.Community,
		Body:          item.Body,
		Score:         item.Score,
		CommentCount:  item.CommentCount,
		CreatedAt:     item.CreatedAt,
		Priority:      item.Priority,
		Quality:       item.Quality,
		Sentiment:     item.Sentiment,
		Topics:        topics,
		PriorityClass: feed.PriorityClass(item.Priority),
		Enriched:      item.Enriched,
		ThreadID:      item.ThreadID,
		IsUpdate:      item.IsUpdate,
		UpdateKind:    item.UpdateKind,
		ArrivedAt:     item.ArrivedAt,
	}
}

func threadView(t feed.Thread) ThreadView {
	topics := t.Topics
	if topics == nil {
		topics = []string{}
	}
	members := t.MemberIDs
	if members == nil {
		members = []string{}
	}
	return ThreadView{
		ID:            t.ID,
		Title:         t.Title,
		Summary:       t.Summary,
		Tone:          string(t.Tone),
		PriorityClass: t.PriorityClass,
		Topics:        topics,
		AvgPriority:   t.AvgPriority,
		Status:        string(t.Status),
		MemberIDs:     members,
		MemberCount:   len(members),
		CreatedAt:     t.CreatedAt,
		LastUpdateAt:  t.LastUpdateAt,
	}
}

func storyView(record store.StoryRecord) StoryView {
	topics := record.Topics
	if topics == nil {
		topics = []string{}
	}
	return StoryView{
		ID:            record.ID,
		SourceItemID:  record.SourceItemID,
		ThreadID:      record.ThreadID,
		Title:         record.Title,
		Narrative:     record.Narrative,
		Tone:          record.Tone,
		PriorityClass: record.PriorityClass,
		Agent:         record.Agent,
		WordCount:     record.WordCount,
		CharCount:     record.CharCount,
		Topics:        topics,
		OriginalBrief: record.OriginalBrief,
		CreatedAt:     record.CreatedAt,
		CompletedAt:   record.CompletedAt,
	}
}
