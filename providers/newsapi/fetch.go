package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"news-faces/config"
	"news-faces/providers"
)

// NewsAPI hängt an gekürzte Inhalte einen Marker wie "… [+2345 chars]" an.
var truncationMarker = regexp.MustCompile(`\s*(…|\.\.\.)?\s*\[\+\d+ chars\]\s*$`)

// Fetcher implementiert providers.NewsSource für NewsAPI (top-headlines).
type Fetcher struct {
	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// NewFetcher erstellt einen neuen NewsAPI-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: cfg.NewsHTTPTimeout},
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "newsapi"
}

// FetchArticles holt die aktuellen Schlagzeilen.
func (f *Fetcher) FetchArticles(ctx context.Context) ([]providers.RawArticle, error) {
	params := url.Values{}
	params.Set("apiKey", f.Config.NewsAPIKey)
	params.Set("country", f.Config.NewsCountry)
	params.Set("language", f.Config.NewsLanguage)
	params.Set("pageSize", strconv.Itoa(f.Config.NewsPageSize))
	endpoint := strings.TrimRight(f.Config.NewsAPIBaseURL, "/") + "/top-headlines?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	f.Logger.Debug("Rufe NewsAPI auf.", zap.String("country", f.Config.NewsCountry), zap.Int("page_size", f.Config.NewsPageSize))
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("newsapi request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var nr Response
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("newsapi decode: %w", err)
	}
	if nr.Status != "" && nr.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", nr.Code, nr.Message)
	}

	articles := make([]providers.RawArticle, 0, len(nr.Articles))
	for _, a := range nr.Articles {
		if a.URL == "" || a.Title == "[Removed]" {
			continue
		}
		articles = append(articles, mapArticle(a))
	}
	if limit := f.Config.NewsPageSize; limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	f.Logger.Info("NewsAPI-Abruf abgeschlossen", zap.Int("articles", len(articles)), zap.Int("total_results", nr.TotalResults))
	return articles, nil
}

// mapArticle konvertiert einen NewsAPI-Artikel in das interne Format.
func mapArticle(a Article) providers.RawArticle {
	return providers.RawArticle{
		Title:       strings.TrimSpace(a.Title),
		Description: PlainText(a.Description),
		Content:     truncationMarker.ReplaceAllString(PlainText(a.Content), ""),
		URL:         a.URL,
		PublishedAt: a.PublishedAt,
		SourceName:  a.Source.Name,
	}
}

// PlainText entfernt HTML-Markup, das manche Quellen in description/content mitliefern.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
