// Package feed holds the core domain types shared by the ingestion queue,
// the enrichment stage, the thread matcher, and the maintenance cycle.
package feed

import "time"

// Sentiment is the three-way tone signal attached by enrichment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// UpdateKind sub-classifies an item that continues an existing thread.
type UpdateKind string

const (
	UpdateNewDevelopment UpdateKind = "new_development"
	UpdateFollowUp       UpdateKind = "follow_up"
	UpdateClarification  UpdateKind = "clarification"
	UpdateCorrection     UpdateKind = "correction"
)

// ThreadStatus is the lifecycle state of a narrative thread.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
)

// RawItem is a post exactly as delivered by the content source. Never
// mutated after fetch.
type RawItem struct {
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
}

// EnrichedItem is a RawItem plus computed signals. Created once by the
// enrichment stage; only the lineage fields (ThreadID, IsUpdate, UpdateKind)
// are written afterwards, by the thread matcher.
type EnrichedItem struct {
	Raw        RawItem
	Priority   float64 // [0,1]
	Quality    float64 // [0,1]
	Sentiment  Sentiment
	Topics     []string
	EnrichedAt time.Time
	Defaulted  bool // true when enrichment timed out and neutral scores apply

	ThreadID   string
	IsUpdate   bool
	UpdateKind UpdateKind
}

// Thread is a narrative cluster. Member order is arrival order and is
// append-only; an archived thread accepts no further members.
type Thread struct {
	ID            string
	MemberIDs     []string
	Title         string
	Summary       string
	Tone          Sentiment
	PriorityClass string
	Topics        []string
	AvgPriority   float64
	Status        ThreadStatus
	CreatedAt     time.Time
	LastUpdateAt  time.Time
}

// CompletedStory is the terminal, durably persisted projection of a thread or
// a single non-threaded item. Append-only history: never mutated or deleted.
type CompletedStory struct {
	ID            string
	SourceItemID  string
	ThreadID      string
	Title         string
	Narrative     string
	Tone          Sentiment
	PriorityClass string
	Agent         string
	WordCount     int
	CharCount     int
	Topics        []string
	OriginalBrief string
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// Words counts whitespace-separated tokens in the narrative.
func (s CompletedStory) Words() int {
	count := 0
	inWord := false
	for _, r := range s.Narrative {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

// PriorityClass buckets a [0,1] priority score into the three display tiers.
func PriorityClass(score float64) string {
	switch {
	case score >= 0.75:
		return "breaking"
	case score >= 0.45:
		return "standard"
	default:
		return "low"
	}
}
