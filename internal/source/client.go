// Package source implements the external content-source client. The core
// only requires best-effort fetch(origin, sort, limit); rate limiting and
// retries are the provider's problem surfaced as plain errors.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"newsroom/api/internal/feed"
)

var validSorts = map[string]struct{}{
	"hot": {}, "new": {}, "rising": {}, "top": {},
}

// Client fetches posts from a Reddit-style listing API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a client; a zero timeout gets a 15s default.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SelfText    string  `json:"selftext"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Over18      bool    `json:"over_18"`
	Stickied    bool    `json:"stickied"`
}

// Fetch pulls up to limit posts from one origin community.
func (c *Client) Fetch(ctx context.Context, origin, sort string, limit int) ([]feed.RawItem, error) {
	if _, ok := validSorts[sort]; !ok {
		return nil, fmt.Errorf("unsupported sort %q", sort)
	}
	if limit <= 0 {
		limit = 25
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s.json", c.baseURL, url.PathEscape(origin), sort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", origin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("fetch %s: rate limited", origin)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", origin, resp.Status)
	}

	var body listing
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s listing: %w", origin, err)
	}

	items := make([]feed.RawItem, 0, len(body.Data.Children))
	for _, child := range body.Data.Children {
		p := child.Data
		if p.ID == "" {
			continue
		}
		items = append(items, feed.RawItem{
			ID:           p.ID,
			Title:        p.Title,
			Author:       p.Author,
			Community:    p.Subreddit,
			Body:         p.SelfText,
			Score:        p.Score,
			CommentCount: p.NumComments,
			CreatedAt:    time.Unix(int64(p.CreatedUTC), 0).UTC(),
			NSFW:         p.Over18,
			Stickied:     p.Stickied,
		})
	}
	return items, nil
}
