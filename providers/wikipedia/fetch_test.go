package wikipedia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"news-faces/config"
)

func newTestFetcher(t *testing.T, body string, status int) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TestBot/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "pageimages", r.URL.Query().Get("prop"))
		assert.Equal(t, "Jane Doe", r.URL.Query().Get("gsrsearch"))
		assert.Equal(t, "600", r.URL.Query().Get("pithumbsize"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		WikipediaAPIURL:    srv.URL,
		WikimediaUserAgent: "TestBot/1.0",
		ImageHTTPTimeout:   5 * time.Second,
		ImageThumbWidth:    600,
	}
	return NewFetcher(cfg, zap.NewNop(), rate.NewLimiter(rate.Inf, 1))
}

func TestFindImagePrefersOriginal(t *testing.T) {
	f := newTestFetcher(t, `{"query":{"pages":{"42":{"pageid":42,"title":"Jane Doe","index":1,
		"original":{"source":"https://upload.wikimedia.org/jane.jpg"},
		"thumbnail":{"source":"https://upload.wikimedia.org/600px-jane.jpg"}}}}}`, http.StatusOK)

	got, err := f.FindImage(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.wikimedia.org/jane.jpg", got)
}

func TestFindImageFallsBackToThumbnail(t *testing.T) {
	f := newTestFetcher(t, `{"query":{"pages":{"42":{"index":1,
		"original":{"source":"data:image/png;base64,xx"},
		"thumbnail":{"source":"https://upload.wikimedia.org/600px-jane.jpg"}}}}}`, http.StatusOK)

	got, err := f.FindImage(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.wikimedia.org/600px-jane.jpg", got)
}

func TestFindImageNoPages(t *testing.T) {
	f := newTestFetcher(t, `{"batchcomplete":""}`, http.StatusOK)

	got, err := f.FindImage(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindImageErrorStatus(t *testing.T) {
	f := newTestFetcher(t, `rate limited`, http.StatusTooManyRequests)

	_, err := f.FindImage(context.Background(), "Jane Doe")
	require.Error(t, err)
}
