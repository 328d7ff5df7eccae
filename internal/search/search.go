package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultItem   ResultType = "item"
	ResultThread ResultType = "thread"
	ResultStory  ResultType = "story"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type          ResultType `json:"type"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Snippet       string     `json:"snippet"`
	ThreadID      string     `json:"threadId,omitempty"`
	Community     string     `json:"community,omitempty"`
	PriorityClass string     `json:"priorityClass,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text                string
	FilterType          ResultType // empty = all types
	FilterCommunity     string
	FilterPriorityClass string
	Limit               int
	Offset              int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ItemRecord is the data we index for a live feed item.
type ItemRecord struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Body          string  `json:"body"`
	Community     string  `json:"community"`
	ThreadID      string  `json:"threadId"`
	Sentiment     string  `json:"sentiment"`
	PriorityClass string  `json:"priorityClass"`
	Priority      float64 `json:"priority"`
}

// ThreadRecord is the data we index for a story thread.
type ThreadRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	PriorityClass string `json:"priorityClass"`
	Status        string `json:"status"`
}

// StoryRecord is the data we index for an archived story.
type StoryRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Narrative     string `json:"narrative"`
	ThreadID      string `json:"threadId"`
	PriorityClass string `json:"priorityClass"`
}
