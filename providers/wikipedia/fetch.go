package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"news-faces/config"
)

// Fetcher implementiert providers.ImageSource über die Wikipedia-API (pageimages).
type Fetcher struct {
	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewFetcher erstellt einen Wikipedia-Fetcher. Der Limiter wird mit Commons geteilt,
// da beide Endpunkte zu Wikimedia gehören.
func NewFetcher(cfg *config.Config, logger *zap.Logger, limiter *rate.Limiter) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: cfg.ImageHTTPTimeout},
		Limiter:    limiter,
	}
}

func (f *Fetcher) Name() string {
	return "wikipedia"
}

// FindImage sucht die beste Seite zum Namen und liefert deren Hauptbild.
// Das Originalbild wird dem Vorschaubild vorgezogen.
func (f *Fetcher) FindImage(ctx context.Context, personName string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("prop", "pageimages")
	params.Set("piprop", "original|thumbnail")
	params.Set("pithumbsize", strconv.Itoa(f.Config.ImageThumbWidth))
	params.Set("generator", "search")
	params.Set("gsrsearch", personName)
	params.Set("gsrlimit", "1")
	params.Set("origin", "*")

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Config.WikipediaAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.Config.WikimediaUserAgent)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia request failed with status %d", resp.StatusCode)
	}

	var qr QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return "", fmt.Errorf("wikipedia decode: %w", err)
	}

	pages := make([]Page, 0, len(qr.Query.Pages))
	for _, p := range qr.Query.Pages {
		pages = append(pages, p)
	}
	// Die API liefert eine Map; Suchreihenfolge über "index".
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	for _, p := range pages {
		if p.Original != nil && strings.HasPrefix(p.Original.Source, "http") {
			return p.Original.Source, nil
		}
		if p.Thumbnail != nil && strings.HasPrefix(p.Thumbnail.Source, "http") {
			return p.Thumbnail.Source, nil
		}
	}
	f.Logger.Debug("Kein Wikipedia-Bild gefunden", zap.String("name", personName))
	return "", nil
}
