package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// ErrNotFound is returned by single-row lookups for missing ids.
var ErrNotFound = errors.New("not found")

const liveItemColumns = `
	id, title, author, community, body, score, comment_count, created_at,
	nsfw, stickied, priority, quality, sentiment, topics, enriched,
	thread_id, is_update, update_kind, arrived_at
`

func (s *PostgresStore) InsertLiveItem(ctx context.Context, item LiveItem) error {
	topics, err := encodeTopics(item.Topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO live_items (id, title, author, community, body, score, comment_count, created_at,
			nsfw, stickied, priority, quality, sentiment, topics, enriched, thread_id, is_update, update_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			score=EXCLUDED.score, comment_count=EXCLUDED.comment_count,
			nsfw=EXCLUDED.nsfw, stickied=EXCLUDED.stickied,
			priority=EXCLUDED.priority, quality=EXCLUDED.quality,
			sentiment=EXCLUDED.sentiment, topics=EXCLUDED.topics,
			enriched=EXCLUDED.enriched, thread_id=EXCLUDED.thread_id,
			is_update=EXCLUDED.is_update, update_kind=EXCLUDED.update_kind
	`, item.ID, item.Title, item.Author, item.Community, item.Body, item.Score, item.CommentCount, item.CreatedAt,
		item.NSFW, item.Stickied, item.Priority, item.Quality, item.Sentiment, topics, item.Enriched,
		item.ThreadID, item.IsUpdate, item.UpdateKind)
	if err != nil {
		return fmt.Errorf("insert live item: %w", err)
	}
	return nil
}

// ListLive returns the live feed in arrival order, oldest first.
func (s *PostgresStore) ListLive(ctx context.Context) ([]LiveItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+liveItemColumns+`
		FROM live_items
		ORDER BY arrived_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list live items: %w", err)
	}
	defer rows.Close()

	items := make([]LiveItem, 0)
	for rows.Next() {
		item, err := scanLiveItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live items: %w", err)
	}
	return items, nil
}

// ListUnenriched returns up to limit items still waiting for enrichment,
// oldest first.
func (s *PostgresStore) ListUnenriched(ctx context.Context, limit int) ([]LiveItem, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+liveItemColumns+`
		FROM live_items
		WHERE NOT enriched
		ORDER BY arrived_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unenriched items: %w", err)
	}
	defer rows.Close()

	items := make([]LiveItem, 0)
	for rows.Next() {
		item, err := scanLiveItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unenriched items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLiveItem(ctx context.Context, itemID string) (LiveItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+liveItemColumns+`
		FROM live_items
		WHERE id=$1
	`, itemID)
	item, err := scanLiveItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LiveItem{}, ErrNotFound
	}
	if err != nil {
		return LiveItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) CountLive(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM live_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count live items: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, itemID string, priority, quality float64, sentiment string, topics []string) error {
	encoded, err := encodeTopics(topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE live_items
		SET priority=$2, quality=$3, sentiment=$4, topics=$5::jsonb, enriched=TRUE
		WHERE id=$1
	`, itemID, priority, quality, sentiment, encoded)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteLiveItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM live_items WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("delete live item: %w", err)
	}
	return nil
}

// InsertStory appends one story to the immutable history. A retry after a
// half-finished archival cycle hits the source_item_id conflict and is a
// silent no-op, which keeps the cycle idempotent.
func (s *PostgresStore) InsertStory(ctx context.Context, story StoryRecord) error {
	topics, err := encodeTopics(story.Topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completed_stories (id, source_item_id, thread_id, title, narrative, tone,
			priority_class, agent, word_count, char_count, topics, original_brief, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14)
		ON CONFLICT (source_item_id) DO NOTHING
	`, story.ID, story.SourceItemID, story.ThreadID, story.Title, story.Narrative, story.Tone,
		story.PriorityClass, story.Agent, story.WordCount, story.CharCount, topics, story.OriginalBrief,
		story.CreatedAt, story.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStories(ctx context.Context, filter StoryFilter) ([]StoryRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_item_id, thread_id, title, narrative, tone, priority_class,
			agent, word_count, char_count, topics, original_brief, created_at, completed_at
		FROM completed_stories
		WHERE ($1='' OR thread_id=$1)
		  AND ($2='' OR priority_class=$2)
		  AND ($3='' OR topics ? $3)
		ORDER BY completed_at DESC
		LIMIT $4 OFFSET $5
	`, filter.ThreadID, filter.PriorityClass, filter.Topic, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]StoryRecord, 0)
	for rows.Next() {
		var item StoryRecord
		var topicsRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.SourceItemID,
			&item.ThreadID,
			&item.Title,
			&item.Narrative,
			&item.Tone,
			&item.PriorityClass,
			&item.Agent,
			&item.WordCount,
			&item.CharCount,
			&topicsRaw,
			&item.OriginalBrief,
			&item.CreatedAt,
			&item.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		_ = json.Unmarshal(topicsRaw, &item.Topics)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountStories(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_stories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	return count, nil
}

// ClearHistory wipes the archive. Row-level immutability triggers do not fire
// for TRUNCATE, which is the single sanctioned escape hatch behind the
// confirmation-gated endpoint.
func (s *PostgresStore) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE completed_stories`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLiveItem(row rowScanner) (LiveItem, error) {
	var item LiveItem
	var topicsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Author,
		&item.Community,
		&item.Body,
		&item.Score,
		&item.CommentCount,
		&item.CreatedAt,
		&item.NSFW,
		&item.Stickied,
		&item.Priority,
		&item.Quality,
		&item.Sentiment,
		&topicsRaw,
		&item.Enriched,
		&item.ThreadID,
		&item.IsUpdate,
		&item.UpdateKind,
		&item.ArrivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return LiveItem{}, sql.ErrNoRows
	}
	if err != nil {
		return LiveItem{}, fmt.Errorf("scan live item: %w", err)
	}
	_ = json.Unmarshal(topicsRaw, &item.Topics)
	return item, nil
}

func encodeTopics(topics []string) (string, error) {
	if topics == nil {
		topics = []string{}
	}
	encoded, err := json.Marshal(topics)
	if err != nil {
		return "", fmt.Errorf("marshal topics: %w", err)
	}
	return string(encoded), nil
}
