package providers

import "context"

// RawArticle ist ein Artikel, wie ihn die News-Quelle liefert.
type RawArticle struct {
	Title       string
	Description string
	Content     string
	URL         string
	PublishedAt string
	SourceName  string
}

// NewsSource liefert eine begrenzte Menge aktueller Artikel.
type NewsSource interface {
	// FetchArticles holt die aktuellen Artikel. Ein Fehler bricht den gesamten Lauf ab.
	FetchArticles(ctx context.Context) ([]RawArticle, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "newsapi").
	Name() string
}

// Extraction ist das strukturierte Ergebnis der Entity-Extraktion für einen Artikel.
// Name kann mehrere kommagetrennte Personen enthalten.
type Extraction struct {
	Name        string `json:"name"`
	CatchyTitle string `json:"catchy_title"`
	Summary     string `json:"summary"`
}

// EntityExtractor extrahiert die zentralen Personen eines Artikels.
type EntityExtractor interface {
	// Extract gibt (nil, nil) zurück, wenn der Artikel keine qualifizierende Person hat.
	Extract(ctx context.Context, article RawArticle) (*Extraction, error)
}

// ImageSource sucht ein Portrait für eine Person.
type ImageSource interface {
	// FindImage gibt "" ohne Fehler zurück, wenn nichts Brauchbares gefunden wurde.
	FindImage(ctx context.Context, personName string) (string, error)

	// Name gibt den Namen der Bildquelle zurück (z.B. "wikipedia").
	Name() string
}
