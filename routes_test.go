package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"news-faces/config"
	"news-faces/models"
	"news-faces/services"
	"news-faces/storage"
)

type stubRunner struct {
	mu      sync.Mutex
	summary *services.RunSummary
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) (*services.RunSummary, error) {
	r.mu.Lock()
	block, entered := r.block, r.entered
	r.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.summary, r.err
}

func newTestApp(t *testing.T, runner services.Runner, mutate func(*config.Config)) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		DBDriver:          "sqlite",
		SQLitePath:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		CORSOrigins:       "http://localhost:5173",
		HeartbeatInterval: 20 * time.Millisecond,
		SubscriberBuffer:  4,
	}
	if mutate != nil {
		mutate(cfg)
	}

	db, err := storage.OpenDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	log := zap.NewNop()
	coordinator := services.NewRunCoordinator(context.Background(), runner, services.NewLocalLock(), time.Hour, time.Hour, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = coordinator.Stop(ctx)
	})

	return &app{
		cfg:         cfg,
		db:          db,
		log:         log,
		coordinator: coordinator,
		latest:      services.NewLatestCards(),
		fanout:      services.NewFanout(cfg.SubscriberBuffer, log),
		queries:     services.NewQueryService(db),
	}
}

func do(router http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRootAndHealth(t *testing.T) {
	a := newTestApp(t, &stubRunner{}, nil)
	a.latest.Replace([]models.NewsCard{{ID: "1", Name: "Jane Doe"}})
	router := newRouter(a)

	w := do(router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])

	w = do(router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["cards_count"])

	w = do(router, http.MethodGet, "/api/people-news", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cards []models.NewsCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "Jane Doe", cards[0].Name)
}

func TestRefreshNews(t *testing.T) {
	a := newTestApp(t, &stubRunner{summary: &services.RunSummary{CardsIngested: 2}}, nil)
	router := newRouter(a)

	w := do(router, http.MethodPost, "/api/refresh-news", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["cards_ingested"])

	w = do(router, http.MethodPost, "/api/refresh-news?async=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshNewsBusy(t *testing.T) {
	runner := &stubRunner{
		summary: &services.RunSummary{},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	a := newTestApp(t, runner, nil)
	router := newRouter(a)

	w := do(router, http.MethodPost, "/api/refresh-news?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	<-runner.entered

	w = do(router, http.MethodPost, "/api/refresh-news", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decode(t, w)["error"])

	close(runner.block)
}

func TestRefreshNewsFailure(t *testing.T) {
	a := newTestApp(t, &stubRunner{err: errors.New("newsapi down")}, nil)

	w := do(newRouter(a), http.MethodPost, "/api/refresh-news", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefreshNewsRequiresAPIKey(t *testing.T) {
	a := newTestApp(t, &stubRunner{summary: &services.RunSummary{}}, func(c *config.Config) {
		c.APISecretKey = "secret"
	})
	router := newRouter(a)

	w := do(router, http.MethodPost, "/api/refresh-news", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/refresh-news", http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, http.StatusOK, w.Code)

	// Lesende Endpunkte bleiben offen.
	w = do(router, http.MethodGet, "/people", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQueryRoutes(t *testing.T) {
	a := newTestApp(t, &stubRunner{}, nil)
	ctx := context.Background()
	ident := services.NewIdentityResolver(a.db, zap.NewNop())
	person, err := ident.ResolvePerson(ctx, "Jane Doe", "https://img/jane.jpg")
	require.NoError(t, err)
	published := time.Date(2025, 10, 10, 13, 28, 17, 0, time.UTC)
	article, err := ident.ResolveArticle(ctx, services.ArticleInput{
		Link: "https://example.com/a", Title: "Jane Wins", Summary: "S.", PublishedAt: &published,
	})
	require.NoError(t, err)
	_, err = ident.Link(ctx, person, article, true)
	require.NoError(t, err)

	router := newRouter(a)

	w := do(router, http.MethodGet, "/people?q=jane", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var people []models.Person
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &people))
	require.Len(t, people, 1)

	w = do(router, http.MethodGet, "/people/cards?top=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cards []models.PersonCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	require.Len(t, cards[0].Articles, 1)
	assert.Equal(t, "Jane Wins", cards[0].Articles[0].Title)

	w = do(router, http.MethodGet, "/people/"+itoa(person.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane Doe", decode(t, w)["name"])

	w = do(router, http.MethodGet, "/people/"+itoa(person.ID)+"/articles", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/articles/latest?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/articles/by-link?link=https://example.com/a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane Wins", decode(t, w)["title"])
}

func TestQueryRouteErrors(t *testing.T) {
	router := newRouter(newTestApp(t, &stubRunner{}, nil))

	tests := []struct {
		target string
		want   int
	}{
		{"/people?limit=0", http.StatusBadRequest},
		{"/people?limit=abc", http.StatusBadRequest},
		{"/people/cards?top=11", http.StatusBadRequest},
		{"/people/abc", http.StatusBadRequest},
		{"/people/999", http.StatusNotFound},
		{"/people/999/articles", http.StatusNotFound},
		{"/articles/latest?limit=501", http.StatusBadRequest},
		{"/articles/by-link?link=abc", http.StatusBadRequest},
		{"/articles/by-link?link=https://missing.example.com", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestDebugClearDB(t *testing.T) {
	disabled := newRouter(newTestApp(t, &stubRunner{}, nil))
	w := do(disabled, http.MethodDelete, "/debug/clear-db", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	a := newTestApp(t, &stubRunner{}, func(c *config.Config) {
		c.DebugEnabled = true
		c.SQLitePath = "file:TestDebugClearDB_enabled?mode=memory&cache=shared"
	})
	_, err := services.NewIdentityResolver(a.db, zap.NewNop()).ResolvePerson(context.Background(), "Jane Doe", "")
	require.NoError(t, err)

	w = do(newRouter(a), http.MethodDelete, "/debug/clear-db", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, a.db.Model(&models.Person{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(newTestApp(t, &stubRunner{}, nil))

	w := do(router, http.MethodOptions, "/api/refresh-news", http.Header{
		"Origin":                        {"http://localhost:5173"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventStreamHeartbeatAndChange(t *testing.T) {
	a := newTestApp(t, &stubRunner{}, nil)
	srv := httptest.NewServer(newRouter(a))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}

	assert.Equal(t, services.EventPing, nextEvent())

	require.Eventually(t, func() bool { return a.fanout.Len() == 1 }, time.Second, 5*time.Millisecond)
	a.fanout.Publish(services.Event{Type: services.EventDataChanged, CardsCount: 1})
	for {
		if ev := nextEvent(); ev != services.EventPing {
			assert.Equal(t, services.EventDataChanged, ev)
			break
		}
	}
}

func TestWebsocketStream(t *testing.T) {
	a := newTestApp(t, &stubRunner{}, func(c *config.Config) {
		c.HeartbeatInterval = time.Hour
	})
	srv := httptest.NewServer(newRouter(a))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return a.fanout.Len() == 1 }, time.Second, 5*time.Millisecond)
	a.fanout.Publish(services.Event{Type: services.EventDataChanged, CardsCount: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev services.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, services.EventDataChanged, ev.Type)
	assert.Equal(t, 3, ev.CardsCount)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return a.fanout.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
