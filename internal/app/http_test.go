package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsroom/api/internal/config"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/ingest"
	"newsroom/api/internal/maintenance"
	"newsroom/api/internal/search"
	"newsroom/api/internal/store"
	"newsroom/api/internal/threads"
)

type fakeDataStore struct {
	live    []store.LiveItem
	stories []store.StoryRecord
	pingErr error
	cleared bool
}

func (f *fakeDataStore) ListLive(context.Context) ([]store.LiveItem, error) { return f.live, nil }
func (f *fakeDataStore) CountLive(context.Context) (int, error)            { return len(f.live), nil }

func (f *fakeDataStore) GetLiveItem(_ context.Context, itemID string) (store.LiveItem, error) {
	for _, item := range f.live {
		if item.ID == itemID {
			return item, nil
		}
	}
	return store.LiveItem{}, store.ErrNotFound
}

func (f *fakeDataStore) ListStories(_ context.Context, filter store.StoryFilter) ([]store.StoryRecord, error) {
	out := make([]store.StoryRecord, 0)
	for _, s := range f.stories {
		if filter.ThreadID != "" && s.ThreadID != filter.ThreadID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeDataStore) CountStories(context.Context) (int, error) { return len(f.stories), nil }

func (f *fakeDataStore) ClearHistory(context.Context) error {
	f.stories = nil
	f.cleared = true
	return nil
}

func (f *fakeDataStore) Ping(context.Context) error { return f.pingErr }

type fakePipeline struct {
	running  bool
	startErr error
	lastCfg  ingest.Config
}

func (f *fakePipeline) Start(_ ingest.Callbacks, cfg ingest.Config) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return ingest.ErrAlreadyRunning
	}
	if len(cfg.Origins) == 0 {
		return ingest.ErrNoOrigins
	}
	f.running = true
	f.lastCfg = cfg
	return nil
}

func (f *fakePipeline) Stop()         { f.running = false }
func (f *fakePipeline) Running() bool { return f.running }

type fakeMaintainer struct {
	report maintenance.Report
	err    error
	state  maintenance.State
}

func (f *fakeMaintainer) Run(context.Context) (maintenance.Report, error) {
	if f.err != nil {
		return maintenance.Report{}, f.err
	}
	return f.report, nil
}

func (f *fakeMaintainer) State() maintenance.State {
	if f.state == "" {
		return maintenance.StateIdle
	}
	return f.state
}

type fakeSearch struct {
	lastQuery search.Query
	indexed   []search.ItemRecord
	healthy   bool
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.lastQuery = q
	return search.Response{Results: []search.Result{}, Total: 0, Query: q.Text}
}

func (f *fakeSearch) IndexItem(item search.ItemRecord) { f.indexed = append(f.indexed, item) }
func (f *fakeSearch) IndexThread(search.ThreadRecord)  {}
func (f *fakeSearch) Healthy() bool                    { return f.healthy }

type testEnv struct {
	store      *fakeDataStore
	pipeline   *fakePipeline
	maintainer *fakeMaintainer
	search     *fakeSearch
	threads    *threads.Store
	server     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      &fakeDataStore{},
		pipeline:   &fakePipeline{},
		maintainer: &fakeMaintainer{},
		search:     &fakeSearch{},
		threads:    threads.NewStore(),
	}
	cfg := config.Config{
		Origins:            []string{"technology"},
		SourceSort:         "hot",
		FetchLimit:         25,
		PublishingInterval: 30 * time.Second,
		LiveFeedCap:        50,
	}
	service := NewService(env.store, env.threads, env.pipeline, env.maintainer, env.search, cfg)
	env.server = httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(env.server.Close)
	return env
}

func decodeResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if body["ok"] != true {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.store.pingErr = errors.New("connection refused")

	resp, err := http.Get(env.server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if body["status"] != "not_ready" {
		t.Fatalf("unexpected ready body: %v", body)
	}
}

func TestReadySearchCheckIsInformational(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with degraded search, got %d", resp.StatusCode)
	}
	var body struct {
		Checks map[string]map[string]any `json:"checks"`
	}
	decodeResponse(t, resp, &body)
	if got := body.Checks["search"]["status"]; got != "degraded" {
		t.Fatalf("expected degraded search check, got %v", got)
	}

	env.search.healthy = true
	resp, err = http.Get(env.server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	decodeResponse(t, resp, &body)
	if got := body.Checks["search"]["status"]; got != "ok" {
		t.Fatalf("expected ok search check, got %v", got)
	}
}

func TestFeedReturnsItemsInArrivalOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := time.Now().UTC()
	env.store.live = []store.LiveItem{
		{ID: "a", Title: "First", Priority: 0.8, ArrivedAt: now.Add(-2 * time.Minute)},
		{ID: "b", Title: "Second", Priority: 0.5, ArrivedAt: now.Add(-time.Minute)},
	}

	resp, err := http.Get(env.server.URL + "/api/feed")
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	var body struct {
		Items []FeedItemView `json:"items"`
		Count int            `json:"count"`
		Cap   int            `json:"cap"`
	}
	decodeResponse(t, resp, &body)

	if body.Count != 2 || body.Cap != 50 {
		t.Fatalf("unexpected envelope: count=%d cap=%d", body.Count, body.Cap)
	}
	if body.Items[0].ID != "a" || body.Items[1].ID != "b" {
		t.Fatalf("order broken: %+v", body.Items)
	}
	if body.Items[0].PriorityClass != "breaking" {
		t.Fatalf("expected breaking class for 0.8, got %s", body.Items[0].PriorityClass)
	}
	if body.Items[1].PriorityClass != "standard" {
		t.Fatalf("expected standard class for 0.5, got %s", body.Items[1].PriorityClass)
	}
}

func TestFeedItemLookup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.store.live = []store.LiveItem{{ID: "a", Title: "First"}}

	resp, err := http.Get(env.server.URL + "/api/feed/a")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	var view FeedItemView
	decodeResponse(t, resp, &view)
	if view.ID != "a" || view.Title != "First" {
		t.Fatalf("unexpected item view: %+v", view)
	}

	resp, err = http.Get(env.server.URL + "/api/feed/missing")
	if err != nil {
		t.Fatalf("get missing item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestThreadLookup(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	thread := env.threads.Create(feed.EnrichedItem{
		Raw:      feed.RawItem{ID: "p1", Title: "Quake hits coastal region", Body: "A strong quake struck."},
		Priority: 0.9, Sentiment: feed.SentimentNegative,
	})

	resp, err := http.Get(env.server.URL + "/api/threads/" + thread.ID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view ThreadView
	decodeResponse(t, resp, &view)
	if view.ID != thread.ID || view.MemberCount != 1 {
		t.Fatalf("unexpected thread view: %+v", view)
	}

	resp, err = http.Get(env.server.URL + "/api/threads/thread_missing")
	if err != nil {
		t.Fatalf("get missing thread: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing thread, got %d", resp.StatusCode)
	}
}

func TestThreadListFiltersByStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	active := env.threads.Create(feed.EnrichedItem{Raw: feed.RawItem{ID: "p1", Title: "Alpha"}})
	archived := env.threads.Create(feed.EnrichedItem{Raw: feed.RawItem{ID: "p2", Title: "Beta"}})
	if err := env.threads.Archive(archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/api/threads?status=active")
	if err != nil {
		t.Fatalf("get threads: %v", err)
	}
	var body struct {
		Threads []ThreadView `json:"threads"`
		Count   int          `json:"count"`
	}
	decodeResponse(t, resp, &body)
	if body.Count != 1 || body.Threads[0].ID != active.ID {
		t.Fatalf("unexpected filtered list: %+v", body)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/search")
	if err != nil {
		t.Fatalf("get search: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/api/search?q=earthquake&type=story")
	if err != nil {
		t.Fatalf("get search: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.search.lastQuery.Text != "earthquake" || env.search.lastQuery.FilterType != search.ResultStory {
		t.Fatalf("query not forwarded: %+v", env.search.lastQuery)
	}
}

func TestPipelineLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/api/pipeline/start", "application/json",
		strings.NewReader(`{"origins":["worldnews"],"publishingIntervalMs":1000}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := env.pipeline.lastCfg.Origins; len(got) != 1 || got[0] != "worldnews" {
		t.Fatalf("override not applied: %v", got)
	}
	if env.pipeline.lastCfg.PublishingInterval != time.Second {
		t.Fatalf("interval override not applied: %v", env.pipeline.lastCfg.PublishingInterval)
	}

	// A second start conflicts.
	resp, err = http.Post(env.server.URL+"/api/pipeline/start", "application/json", nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if resp.StatusCode != http.StatusConflict || body["code"] != "PIPELINE_RUNNING" {
		t.Fatalf("expected 409 PIPELINE_RUNNING, got %d %v", resp.StatusCode, body)
	}

	resp, err = http.Post(env.server.URL+"/api/pipeline/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	resp.Body.Close()
	if env.pipeline.Running() {
		t.Fatal("pipeline still running after stop")
	}
}

func TestPipelineStartWithoutOriginsFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.pipeline.startErr = ingest.ErrNoOrigins

	resp, err := http.Post(env.server.URL+"/api/pipeline/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if resp.StatusCode != http.StatusUnprocessableEntity || body["code"] != "NO_ORIGINS" {
		t.Fatalf("expected 422 NO_ORIGINS, got %d %v", resp.StatusCode, body)
	}
}

func TestMaintenanceRunReturnsReport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.maintainer.report = maintenance.Report{Enriched: 2, Archived: 5, Remaining: 50}

	resp, err := http.Post(env.server.URL+"/api/maintenance/run", "application/json", nil)
	if err != nil {
		t.Fatalf("run maintenance: %v", err)
	}
	var report maintenance.Report
	decodeResponse(t, resp, &report)
	if report.Archived != 5 || report.Remaining != 50 {
		t.Fatalf("unexpected report: %+v", report)
	}

	env.maintainer.err = maintenance.ErrCycleRunning
	resp, err = http.Post(env.server.URL+"/api/maintenance/run", "application/json", nil)
	if err != nil {
		t.Fatalf("run maintenance: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for concurrent cycle, got %d", resp.StatusCode)
	}
}

func TestClearHistoryDemandsConfirmation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.store.stories = []store.StoryRecord{{ID: "story-1", SourceItemID: "item-1"}}

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/history", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete history: %v", err)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if resp.StatusCode != http.StatusConflict || body["code"] != "CONFIRMATION_REQUIRED" {
		t.Fatalf("expected 409 CONFIRMATION_REQUIRED, got %d %v", resp.StatusCode, body)
	}
	if env.store.cleared {
		t.Fatal("history cleared without confirmation")
	}

	req, _ = http.NewRequest(http.MethodDelete, env.server.URL+"/api/history?confirm=true", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !env.store.cleared {
		t.Fatal("history not cleared with confirmation")
	}
}

func TestStoriesEndpointFiltersByThread(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.store.stories = []store.StoryRecord{
		{ID: "s1", SourceItemID: "i1", ThreadID: "t1", Title: "One"},
		{ID: "s2", SourceItemID: "i2", ThreadID: "t2", Title: "Two"},
	}

	resp, err := http.Get(env.server.URL + "/api/stories?threadId=t2")
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	var body struct {
		Stories []StoryView `json:"stories"`
		Total   int         `json:"total"`
	}
	decodeResponse(t, resp, &body)
	if len(body.Stories) != 1 || body.Stories[0].ID != "s2" {
		t.Fatalf("filter not applied: %+v", body.Stories)
	}
	if body.Total != 2 {
		t.Fatalf("expected total 2, got %d", body.Total)
	}
}
