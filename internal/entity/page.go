package entity

// PageContent is a point-in-time snapshot of the page under the cursor.
// Text is the cleaned visible text, HTML the raw body markup.
type PageContent struct {
	URL   string
	Title string
	HTML  string
	Text  string
}

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}
