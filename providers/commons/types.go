package commons

// SearchResponse ist die Antwort auf list=search im Datei-Namensraum.
type SearchResponse struct {
	Query struct {
		Search []SearchResult `json:"search"`
	} `json:"query"`
}

type SearchResult struct {
	NS    int    `json:"ns"`
	Title string `json:"title"`
}

// ImageInfoResponse ist die Antwort auf prop=imageinfo.
type ImageInfoResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string      `json:"title"`
			ImageInfo []ImageInfo `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// ImageInfo enthält die Original-URL und, falls angefragt, eine skalierte Variante.
type ImageInfo struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumburl"`
}
