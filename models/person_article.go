package models

// PersonArticle verknüpft eine Person mit einem Artikel (n:m).
// Pro (Person, Artikel) existiert höchstens eine Zeile.
type PersonArticle struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	PersonID  uint `json:"person_id" gorm:"not null;index;uniqueIndex:idx_person_articles_pair"`
	ArticleID uint `json:"article_id" gorm:"not null;index;uniqueIndex:idx_person_articles_pair"`
	IsPrimary bool `json:"is_primary" gorm:"not null"`

	Person  *Person  `json:"-" gorm:"foreignKey:PersonID"`
	Article *Article `json:"-" gorm:"foreignKey:ArticleID"`
}

func (PersonArticle) TableName() string { return "person_articles" }
