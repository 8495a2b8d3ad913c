package commons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"news-faces/config"
)

// fileNamespace ist der MediaWiki-Namensraum für Dateien ("File:...").
const fileNamespace = "6"

// Fetcher implementiert providers.ImageSource über Wikimedia Commons.
type Fetcher struct {
	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

func NewFetcher(cfg *config.Config, logger *zap.Logger, limiter *rate.Limiter) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: cfg.ImageHTTPTimeout},
		Limiter:    limiter,
	}
}

func (f *Fetcher) Name() string {
	return "commons"
}

// FindImage sucht eine passende Datei und löst sie über imageinfo in eine URL auf.
// Die skalierte Variante (IMAGE_THUMB_WIDTH) hat Vorrang vor dem Original.
func (f *Fetcher) FindImage(ctx context.Context, personName string) (string, error) {
	search := url.Values{}
	search.Set("action", "query")
	search.Set("format", "json")
	search.Set("list", "search")
	search.Set("srsearch", personName)
	search.Set("srnamespace", fileNamespace)
	search.Set("srlimit", "1")
	search.Set("origin", "*")

	var sr SearchResponse
	if err := f.get(ctx, search, &sr); err != nil {
		return "", fmt.Errorf("commons search: %w", err)
	}
	if len(sr.Query.Search) == 0 || sr.Query.Search[0].Title == "" {
		return "", nil
	}
	fileTitle := sr.Query.Search[0].Title

	info := url.Values{}
	info.Set("action", "query")
	info.Set("format", "json")
	info.Set("prop", "imageinfo")
	info.Set("titles", fileTitle)
	info.Set("iiprop", "url")
	info.Set("iiurlwidth", strconv.Itoa(f.Config.ImageThumbWidth))
	info.Set("origin", "*")

	var ir ImageInfoResponse
	if err := f.get(ctx, info, &ir); err != nil {
		return "", fmt.Errorf("commons imageinfo: %w", err)
	}

	for _, page := range ir.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		ii := page.ImageInfo[0]
		if strings.HasPrefix(ii.ThumbURL, "http") {
			return ii.ThumbURL, nil
		}
		if strings.HasPrefix(ii.URL, "http") {
			return ii.URL, nil
		}
	}
	f.Logger.Debug("Keine Commons-Datei auflösbar", zap.String("name", personName), zap.String("file", fileTitle))
	return "", nil
}

func (f *Fetcher) get(ctx context.Context, params url.Values, out any) error {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Config.CommonsAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.Config.WikimediaUserAgent)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
