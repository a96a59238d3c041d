// Package bookfetch retrieves one book's metadata, chapter manifest,
// chapter bodies, and reference graph (images, stylesheets, cross-chapter
// links) through an authenticated session.
package bookfetch

// Metadata is a book's bibliographic record, persisted as a sidecar file
// in its output folder.
type Metadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Publisher   string   `json:"publisher"`
	ISBN        string   `json:"isbn"`
	Description string   `json:"description"`
	Subjects    []string `json:"subjects"`
	Rights      string   `json:"rights"`
	ReleaseDate string   `json:"release_date"`
	CoverURL    string   `json:"cover_url"`

	ChapterManifestURL string `json:"-"`

	Raw []byte `json:"-"`
}

// FirstAuthor returns the first listed author, or "Unknown" if there are
// none.
func (m Metadata) FirstAuthor() string {
	if len(m.Authors) == 0 {
		return "Unknown"
	}
	return m.Authors[0]
}

// ChapterNode is one chapter's content and extracted reference set.
type ChapterNode struct {
	Filename     string
	HTTPURL      string
	AssetBaseURL string
	Fragment     string
	Title        string
	Body         []byte // normalized, ref-rewritten XHTML body fragment

	// Stylesheets and Images map each reference's sanitized local name to
	// its resolved absolute source URL.
	Stylesheets map[string]string
	Images      map[string]string

	// InlineStyles holds the rewritten CSS text of every <style> block
	// found in this chapter, keyed by the local filename it's packaged
	// under. ExtraStylesheets lists those filenames in document order so
	// the chapter's <head> can link them alongside Stylesheets.
	InlineStyles     map[string][]byte
	ExtraStylesheets []string
}

// Book is the fully fetched book: ordered chapters plus metadata, cover,
// and the union of every stylesheet and image referenced across chapters.
type Book struct {
	Metadata    Metadata
	Chapters    []ChapterNode
	CoverBytes  []byte
	CoverExt    string
	Stylesheets map[string]string // local name -> source URL
	Images      map[string]string // local name -> source URL

	// InlineStyles is the union of every chapter's extracted <style>
	// block CSS, keyed by the same local filename used in that chapter's
	// ExtraStylesheets.
	InlineStyles map[string][]byte
}

// chapterDescriptor is one entry from the paginated chapter-manifest
// response.
type chapterDescriptor struct {
	ContentURL   string
	AssetBaseURL string
}
