package models

import "time"

// Article ist ein Nachrichtenartikel, eindeutig über seinen Quell-Link.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Kurzer, generierter Titel für die UI
	Title       string     `json:"title" gorm:"type:text;not null"`
	Summary     string     `json:"summary" gorm:"type:text;not null"`
	Link        string     `json:"link" gorm:"type:text;uniqueIndex;not null"`
	SourceName  string     `json:"source_name,omitempty" gorm:"type:text"`
	PublishedAt *time.Time `json:"published_at,omitempty" gorm:"index:idx_articles_published_at"`
	ImageURL    string     `json:"image_url,omitempty" gorm:"type:text"`

	PersonArticles []PersonArticle `json:"-" gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (Article) TableName() string {
	return "articles"
}
