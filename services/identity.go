package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"news-faces/models"
)

// ErrEmptyLink wird zurückgegeben, wenn ein Artikel ohne Link aufgelöst werden soll.
var ErrEmptyLink = errors.New("article link is empty")

// NormalizeName liefert den Vergleichsschlüssel eines Namens: getrimmt,
// Whitespace zusammengefasst, kleingeschrieben.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// DisplayName schreibt jedes Wort des Originalnamens groß ("JOE  biden" -> "Joe Biden").
func DisplayName(raw string) string {
	// cases.Caser ist zustandsbehaftet und wird deshalb pro Aufruf erzeugt.
	caser := cases.Title(language.Und)
	fields := strings.Fields(raw)
	for i, f := range fields {
		fields[i] = caser.String(f)
	}
	return strings.Join(fields, " ")
}

// ArticleInput sind die Felder, mit denen ein Artikel aufgelöst wird.
type ArticleInput struct {
	Link        string
	Title       string
	Summary     string
	SourceName  string
	PublishedAt *time.Time
	ImageURL    string
}

// IdentityResolver ordnet Namen und Links den bestehenden Datensätzen zu,
// sodass wiederholte Läufe keine Duplikate erzeugen.
type IdentityResolver struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewIdentityResolver erstellt einen neuen IdentityResolver.
func NewIdentityResolver(db *gorm.DB, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{DB: db, Logger: logger}
}

// WithTx gibt einen Resolver zurück, der innerhalb der Transaktion tx arbeitet.
func (r *IdentityResolver) WithTx(tx *gorm.DB) *IdentityResolver {
	return &IdentityResolver{DB: tx, Logger: r.Logger}
}

// ResolvePerson findet oder erstellt die Person zum Namen. Ein fehlendes Bild
// wird nachgetragen. Ergibt der normalisierte Name "", ist das Ergebnis (nil, nil).
func (r *IdentityResolver) ResolvePerson(ctx context.Context, rawName, imageURL string) (*models.Person, error) {
	key := NormalizeName(rawName)
	if key == "" {
		return nil, nil
	}
	db := r.DB.WithContext(ctx)

	person, err := r.findPerson(db, key)
	if err != nil {
		return nil, err
	}
	if person == nil {
		person = &models.Person{Name: DisplayName(rawName), NameKey: key, ImageURL: imageURL}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name_key"}},
			DoNothing: true,
		}).Create(person)
		if res.Error != nil {
			return nil, fmt.Errorf("create person %q: %w", key, res.Error)
		}
		if res.RowsAffected > 0 {
			r.Logger.Debug("Neue Person angelegt", zap.String("name", person.Name), zap.Uint("id", person.ID))
			return person, nil
		}
		// Ein paralleler Resolver war schneller.
		if person, err = r.findPerson(db, key); err != nil {
			return nil, err
		}
		if person == nil {
			return nil, fmt.Errorf("person %q vanished after conflict", key)
		}
	}

	if person.ImageURL == "" && imageURL != "" {
		if err := db.Model(person).Update("image_url", imageURL).Error; err != nil {
			return nil, fmt.Errorf("backfill person image: %w", err)
		}
		person.ImageURL = imageURL
	}
	return person, nil
}

func (r *IdentityResolver) findPerson(db *gorm.DB, key string) (*models.Person, error) {
	var p models.Person
	err := db.Where("name_key = ?", key).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup person %q: %w", key, err)
	}
	return &p, nil
}

// ResolveArticle findet oder erstellt den Artikel zum Link. Bestehende Artikel
// bekommen fehlende Felder nachgetragen; Titel und Zusammenfassung werden
// überschrieben, wenn der neue Wert nicht leer ist und abweicht.
func (r *IdentityResolver) ResolveArticle(ctx context.Context, in ArticleInput) (*models.Article, error) {
	if in.Link == "" {
		return nil, ErrEmptyLink
	}
	db := r.DB.WithContext(ctx)

	article, err := r.findArticle(db, in.Link)
	if err != nil {
		return nil, err
	}
	if article == nil {
		article = &models.Article{
			Title:       in.Title,
			Summary:     in.Summary,
			Link:        in.Link,
			SourceName:  in.SourceName,
			PublishedAt: in.PublishedAt,
			ImageURL:    in.ImageURL,
		}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "link"}},
			DoNothing: true,
		}).Create(article)
		if res.Error != nil {
			return nil, fmt.Errorf("create article: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return article, nil
		}
		if article, err = r.findArticle(db, in.Link); err != nil {
			return nil, err
		}
		if article == nil {
			return nil, fmt.Errorf("article %q vanished after conflict", in.Link)
		}
	}

	updates := map[string]any{}
	if article.PublishedAt == nil && in.PublishedAt != nil {
		updates["published_at"] = *in.PublishedAt
		article.PublishedAt = in.PublishedAt
	}
	if article.SourceName == "" && in.SourceName != "" {
		updates["source_name"] = in.SourceName
		article.SourceName = in.SourceName
	}
	if article.ImageURL == "" && in.ImageURL != "" {
		updates["image_url"] = in.ImageURL
		article.ImageURL = in.ImageURL
	}
	if in.Title != "" && in.Title != article.Title {
		updates["title"] = in.Title
		article.Title = in.Title
	}
	if in.Summary != "" && in.Summary != article.Summary {
		updates["summary"] = in.Summary
		article.Summary = in.Summary
	}
	if len(updates) > 0 {
		if err := db.Model(&models.Article{ID: article.ID}).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update article %d: %w", article.ID, err)
		}
	}
	return article, nil
}

func (r *IdentityResolver) findArticle(db *gorm.DB, link string) (*models.Article, error) {
	var a models.Article
	err := db.Where("link = ?", link).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup article: %w", err)
	}
	return &a, nil
}

// Link verknüpft Person und Artikel. Eine bestehende Verknüpfung wird
// unverändert zurückgegeben, auch wenn isPrimary abweicht.
func (r *IdentityResolver) Link(ctx context.Context, person *models.Person, article *models.Article, isPrimary bool) (*models.PersonArticle, error) {
	db := r.DB.WithContext(ctx)

	pa, err := r.findLink(db, person.ID, article.ID)
	if err != nil || pa != nil {
		return pa, err
	}

	pa = &models.PersonArticle{PersonID: person.ID, ArticleID: article.ID, IsPrimary: isPrimary}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "person_id"}, {Name: "article_id"}},
		DoNothing: true,
	}).Create(pa)
	if res.Error != nil {
		return nil, fmt.Errorf("link person %d to article %d: %w", person.ID, article.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		return pa, nil
	}
	return r.findLink(db, person.ID, article.ID)
}

func (r *IdentityResolver) findLink(db *gorm.DB, personID, articleID uint) (*models.PersonArticle, error) {
	var pa models.PersonArticle
	err := db.Where("person_id = ? AND article_id = ?", personID, articleID).First(&pa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup link: %w", err)
	}
	return &pa, nil
}
