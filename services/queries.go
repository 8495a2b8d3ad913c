package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"news-faces/models"
)

// ErrNotFound wird bei Punktabfragen ohne Treffer zurückgegeben.
var ErrNotFound = errors.New("not found")

// Sortierung "neueste zuerst, ohne Datum zuletzt", portabel für PostgreSQL und SQLite.
const articleRecency = "articles.published_at IS NULL, articles.published_at DESC, articles.created_at DESC"

// QueryService ist die lesende Sicht auf Personen und Artikel.
type QueryService struct {
	DB *gorm.DB
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{DB: db}
}

// ListPeople liefert die zuletzt angelegten Personen, optional gefiltert nach Namensteil.
func (q *QueryService) ListPeople(ctx context.Context, limit int, filter string) ([]models.Person, error) {
	tx := q.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if f := strings.TrimSpace(filter); f != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f)+"%")
	}
	var people []models.Person
	if err := tx.Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}

func (q *QueryService) GetPerson(ctx context.Context, id uint) (*models.Person, error) {
	var p models.Person
	err := q.DB.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ArticlesForPerson liefert die Artikel einer Person, neueste zuerst.
func (q *QueryService) ArticlesForPerson(ctx context.Context, personID uint, limit int) ([]models.Article, error) {
	if _, err := q.GetPerson(ctx, personID); err != nil {
		return nil, err
	}
	var articles []models.Article
	err := q.DB.WithContext(ctx).
		Joins("JOIN person_articles ON person_articles.article_id = articles.id").
		Where("person_articles.person_id = ?", personID).
		Order(articleRecency).
		Limit(limit).
		Find(&articles).Error
	if err != nil {
		return nil, err
	}
	return articles, nil
}

func (q *QueryService) LatestArticles(ctx context.Context, limit int) ([]models.Article, error) {
	var articles []models.Article
	if err := q.DB.WithContext(ctx).Order(articleRecency).Limit(limit).Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (q *QueryService) ArticleByLink(ctx context.Context, link string) (*models.Article, error) {
	var a models.Article
	err := q.DB.WithContext(ctx).Where("link = ?", link).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type cardRow struct {
	PersonID    uint
	PersonName  string
	PersonImage string
	ArticleID   uint
	Title       string
	Summary     string
	Link        string
	PublishedAt *time.Time
}

// PersonCards liefert pro Person die top neuesten Artikel. Personen sind nach
// ihrem neuesten Artikel sortiert, Personen ohne Datum zuletzt.
func (q *QueryService) PersonCards(ctx context.Context, top int) ([]models.PersonCard, error) {
	var rows []cardRow
	err := q.DB.WithContext(ctx).
		Table("people").
		Select(`people.id AS person_id, people.name AS person_name, people.image_url AS person_image,
			articles.id AS article_id, articles.title, articles.summary, articles.link, articles.published_at`).
		Joins("JOIN person_articles ON person_articles.person_id = people.id").
		Joins("JOIN articles ON articles.id = person_articles.article_id").
		Order("people.id").
		Order(articleRecency).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	cards := make([]models.PersonCard, 0)
	index := make(map[uint]int)
	for _, r := range rows {
		i, ok := index[r.PersonID]
		if !ok {
			i = len(cards)
			index[r.PersonID] = i
			cards = append(cards, models.PersonCard{ID: r.PersonID, Name: r.PersonName, ImageURL: r.PersonImage})
		}
		if len(cards[i].Articles) >= top {
			continue
		}
		var published *string
		if r.PublishedAt != nil {
			s := r.PublishedAt.UTC().Format(time.RFC3339)
			published = &s
		}
		cards[i].Articles = append(cards[i].Articles, models.CardArticle{
			ID:          r.ArticleID,
			Title:       r.Title,
			Summary:     r.Summary,
			Link:        r.Link,
			ImageURL:    r.PersonImage,
			PublishedAt: published,
		})
	}

	sort.SliceStable(cards, func(i, j int) bool {
		return latestPublished(cards[i]).After(latestPublished(cards[j]))
	})
	return cards, nil
}

// latestPublished ist der Zeitpunkt des neuesten Artikels; ohne Datum der Nullwert.
func latestPublished(c models.PersonCard) time.Time {
	if len(c.Articles) == 0 || c.Articles[0].PublishedAt == nil {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, *c.Articles[0].PublishedAt)
	return t
}
