package wikipedia

// QueryResponse ist die Antwort der MediaWiki-API für prop=pageimages.
type QueryResponse struct {
	Query struct {
		Pages map[string]Page `json:"pages"`
	} `json:"query"`
}

// Page ist eine Wikipedia-Seite mit optionalem Original- und Vorschaubild.
type Page struct {
	PageID    int    `json:"pageid"`
	Title     string `json:"title"`
	Index     int    `json:"index"`
	Original  *Image `json:"original"`
	Thumbnail *Image `json:"thumbnail"`
}

type Image struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
