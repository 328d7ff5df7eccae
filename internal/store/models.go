package store

import "time"

// LiveItem is one row of the bounded live feed. It mirrors feed.EnrichedItem
// flattened for the database, plus the arrival ordinal used for eviction.
type LiveItem struct {
	ID           string
	Title        string
	Author       string
	Community    string
	Body         string
	Score        int
	CommentCount int
	CreatedAt    time.Time
	NSFW         bool
	Stickied     bool

	Priority  float64
	Quality   float64
	Sentiment string
	Topics    []string
	Enriched  bool

	ThreadID   string
	IsUpdate   bool
	UpdateKind string

	ArrivedAt time.Time
}

// StoryRecord is one archived story in the append-only history table.
type StoryRecord struct {
	ID            string
	SourceItemID  string
	ThreadID      string
	Title         string
	Narrative     string
	Tone          string
	PriorityClass string
	Agent         string
	WordCount     int
	CharCount     int
	Topics        []string
	OriginalBrief string
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// StoryFilter narrows ListStories. Zero values mean "no constraint".
type StoryFilter struct {
	ThreadID      string
	PriorityClass string
	Topic         string
	Limit         int
	Offset        int
}
