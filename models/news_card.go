package models

// NewsCard ist ein Ergebnis-Datensatz pro (Artikel, Person) eines Pipeline-Laufs.
// Cards leben nur im Speicher; persistiert werden Person, Article und PersonArticle.
type NewsCard struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url"`
	CatchyTitle string `json:"catchy_title"`
	Summary     string `json:"summary"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at"`
	SourceName  string `json:"source_name,omitempty"`
}

// PersonCard ist die aggregierte Sicht "Person + ihre neuesten Artikel".
type PersonCard struct {
	ID       uint          `json:"id"`
	Name     string        `json:"name"`
	ImageURL string        `json:"image_url,omitempty"`
	Articles []CardArticle `json:"articles"`
}

// CardArticle ist ein Artikel innerhalb einer PersonCard.
type CardArticle struct {
	ID          uint    `json:"id"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Link        string  `json:"link"`
	ImageURL    string  `json:"image_url,omitempty"`
	PublishedAt *string `json:"published_at"`
}
