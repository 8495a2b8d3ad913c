package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"news-faces/metrics"
	"news-faces/models"
	"news-faces/providers"
)

// RunSummary fasst einen abgeschlossenen Lauf zusammen.
type RunSummary struct {
	CardsIngested   int           `json:"cards_ingested"`
	ArticlesFetched int           `json:"articles_fetched"`
	ArticlesSkipped int           `json:"articles_skipped"`
	NamesRejected   int           `json:"names_rejected"`
	Duration        time.Duration `json:"-"`
}

// IngestionPipeline holt Artikel, extrahiert Personen, löst Bilder auf und
// persistiert Personen, Artikel und Verknüpfungen.
type IngestionPipeline struct {
	DB            *gorm.DB
	Source        providers.NewsSource
	Extractor     providers.EntityExtractor
	Validator     *NameValidator
	Images        *ImageResolver
	Identity      *IdentityResolver
	Latest        *LatestCards
	Notifier      Publisher
	TitleMaxWords int
	Logger        *zap.Logger
}

// Run führt einen vollständigen Lauf aus. Fehler der News-Quelle oder der
// Datenbank brechen den Lauf ab; in diesem Fall bleiben die bisherigen Cards erhalten.
func (p *IngestionPipeline) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary, err := p.run(ctx)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngestRuns.WithLabelValues("aborted").Inc()
		p.Logger.Error("Pipeline-Lauf abgebrochen", zap.Error(err))
		return nil, err
	}
	summary.Duration = time.Since(start)
	metrics.IngestRuns.WithLabelValues("completed").Inc()
	metrics.CardsIngested.Add(float64(summary.CardsIngested))
	p.Logger.Info("Pipeline-Lauf abgeschlossen",
		zap.Int("cards_ingested", summary.CardsIngested),
		zap.Int("articles_fetched", summary.ArticlesFetched),
		zap.Int("articles_skipped", summary.ArticlesSkipped),
		zap.Int("names_rejected", summary.NamesRejected),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *IngestionPipeline) run(ctx context.Context) (*RunSummary, error) {
	p.Logger.Info("Hole Artikel", zap.String("source", p.Source.Name()))
	articles, err := p.Source.FetchArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch articles from %s: %w", p.Source.Name(), err)
	}

	summary := &RunSummary{ArticlesFetched: len(articles)}
	cards, err := p.assembleCards(ctx, articles, summary)
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, cards); err != nil {
		return nil, err
	}
	summary.CardsIngested = len(cards)

	p.Latest.Replace(cards)
	if p.Notifier != nil {
		delivered := p.Notifier.Publish(Event{Type: EventDataChanged, CardsCount: len(cards)})
		p.Logger.Debug("Änderung gemeldet", zap.Int("subscribers", delivered))
	}
	return summary, nil
}

// assembleCards erzeugt eine Card pro (Artikel, Person) in Abruf- und Extraktionsreihenfolge.
func (p *IngestionPipeline) assembleCards(ctx context.Context, articles []providers.RawArticle, summary *RunSummary) ([]models.NewsCard, error) {
	cards := make([]models.NewsCard, 0, len(articles))

	for idx, article := range articles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := p.Logger.With(zap.Int("article", idx+1), zap.String("link", article.URL))

		ex, err := p.Extractor.Extract(ctx, article)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			summary.ArticlesSkipped++
			metrics.ArticlesSkipped.WithLabelValues("extraction_failed").Inc()
			log.Warn("Extraktion fehlgeschlagen, überspringe Artikel", zap.Error(err))
			continue
		}
		if ex == nil {
			summary.ArticlesSkipped++
			metrics.ArticlesSkipped.WithLabelValues("no_person").Inc()
			log.Debug("Keine Person im Artikel")
			continue
		}

		before := len(cards)
		for _, raw := range strings.Split(ex.Name, ",") {
			name := strings.Join(strings.Fields(raw), " ")
			if name == "" {
				continue
			}
			if !p.Validator.IsValid(name) {
				summary.NamesRejected++
				metrics.NamesRejected.Inc()
				log.Info("Name abgelehnt", zap.String("name", name))
				continue
			}

			imageURL := p.Images.Resolve(ctx, name)
			cards = append(cards, models.NewsCard{
				ID:          strconv.Itoa(len(cards) + 1),
				Name:        name,
				ImageURL:    imageURL,
				CatchyTitle: TrimTitle(ex.CatchyTitle, p.TitleMaxWords),
				Summary:     ex.Summary,
				Link:        article.URL,
				PublishedAt: article.PublishedAt,
				SourceName:  article.SourceName,
			})
			log.Debug("Card erstellt", zap.String("name", name))
		}
		if len(cards) == before {
			summary.ArticlesSkipped++
			metrics.ArticlesSkipped.WithLabelValues("no_valid_name").Inc()
		}
	}
	return cards, nil
}

// persist schreibt alle Cards in einer Transaktion. Ein Fehler rollt den gesamten Lauf zurück.
func (p *IngestionPipeline) persist(ctx context.Context, cards []models.NewsCard) error {
	if len(cards) == 0 {
		return nil
	}
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ident := p.Identity.WithTx(tx)
		for _, card := range cards {
			person, err := ident.ResolvePerson(ctx, card.Name, card.ImageURL)
			if err != nil {
				return fmt.Errorf("resolve person %q: %w", card.Name, err)
			}
			if person == nil {
				continue
			}

			title := card.CatchyTitle
			if title == "" {
				title = card.Name
			}
			article, err := ident.ResolveArticle(ctx, ArticleInput{
				Link:        card.Link,
				Title:       title,
				Summary:     card.Summary,
				SourceName:  card.SourceName,
				PublishedAt: ParsePublishedAt(card.PublishedAt),
				ImageURL:    card.ImageURL,
			})
			if err != nil {
				return fmt.Errorf("resolve article %q: %w", card.Link, err)
			}

			if _, err := ident.Link(ctx, person, article, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// TrimTitle kürzt einen Titel auf höchstens maxWords Wörter. maxWords <= 0 kürzt nicht.
func TrimTitle(title string, maxWords int) string {
	words := strings.Fields(title)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

// ParsePublishedAt liest Zeitstempel wie "2025-10-10T13:28:17Z"; ungültige Werte ergeben nil.
func ParsePublishedAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
