package models

import "time"

// Person repräsentiert eine in den Nachrichten erwähnte Person.
// NameKey ist der normalisierte Schlüssel (getrimmt, Whitespace zusammengefasst,
// kleingeschrieben) und in der Datenbank eindeutig.
type Person struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name" gorm:"type:text;not null"`
	NameKey  string `json:"-" gorm:"type:text;uniqueIndex;not null"`
	ImageURL string `json:"image_url,omitempty" gorm:"type:text"`

	PersonArticles []PersonArticle `json:"-" gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (Person) TableName() string {
	return "people"
}
