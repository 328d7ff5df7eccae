package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Threads live only in memory, so the fallback covers live items and archived
// stories; thread hits are a Meilisearch-only feature.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across live_items and completed_stories
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultItem {
		itemWhere := "li.search_vector @@ " + tsQuery
		if q.FilterCommunity != "" {
			itemWhere += fmt.Sprintf(" AND li.community = $%d", argN)
			args = append(args, q.FilterCommunity)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, li.id, li.title,
				ts_headline('english', coalesce(li.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				li.thread_id, li.community,
				''::text AS priority_class,
				ts_rank(li.search_vector, %s) AS rank
			FROM live_items li
			WHERE %s`, tsQuery, tsQuery, itemWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultStory {
		storyWhere := "cs.search_vector @@ " + tsQuery
		if q.FilterPriorityClass != "" {
			storyWhere += fmt.Sprintf(" AND cs.priority_class = $%d", argN)
			args = append(args, q.FilterPriorityClass)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'story'::text AS type, cs.id, cs.title,
				ts_headline('english', coalesce(cs.narrative, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				cs.thread_id, ''::text AS community,
				cs.priority_class,
				ts_rank(cs.search_vector, %s) AS rank
			FROM completed_stories cs
			WHERE %s`, tsQuery, tsQuery, storyWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, thread_id, community, priority_class
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ThreadID, &r.Community, &r.PriorityClass); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all persisted searchable records for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ItemRecord, []StoryRecord, error) {
	itemRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, body, community, thread_id, sentiment, priority
		FROM live_items
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load live items: %w", err)
	}
	defer itemRows.Close()

	items := make([]ItemRecord, 0)
	for itemRows.Next() {
		var item ItemRecord
		if err := itemRows.Scan(&item.ID, &item.Title, &item.Body, &item.Community, &item.ThreadID, &item.Sentiment, &item.Priority); err != nil {
			return nil, nil, fmt.Errorf("scan live item: %w", err)
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate live items: %w", err)
	}

	storyRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, narrative, thread_id, priority_class
		FROM completed_stories
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load stories: %w", err)
	}
	defer storyRows.Close()

	stories := make([]StoryRecord, 0)
	for storyRows.Next() {
		var s StoryRecord
		if err := storyRows.Scan(&s.ID, &s.Title, &s.Narrative, &s.ThreadID, &s.PriorityClass); err != nil {
			return nil, nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, s)
	}
	if err := storyRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate stories: %w", err)
	}

	return items, stories, nil
}
