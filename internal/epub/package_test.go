package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildManifestIncludesInlineStylesheets(t *testing.T) {
	book := testBook()
	entries := buildManifest(book, ProfileStandard)

	var found bool
	for _, e := range entries {
		if e.Href == "Styles/chapter-002-inline-0.css" {
			found = true
			assert.Equal(t, "text/css", e.MediaType)
		}
	}
	assert.True(t, found, "inline stylesheet must appear in the manifest")
}

func TestBuildManifestOmitsProfileStylesheetFromStylesheetSet(t *testing.T) {
	book := testBook()
	book.Stylesheets["standard.css"] = "https://cdn.example.com/standard.css"

	entries := buildManifest(book, ProfileStandard)
	count := 0
	for _, e := range entries {
		if e.ID == "css" {
			count++
		}
	}
	assert.Equal(t, 1, count, "the profile's own bundled stylesheet must not be duplicated")
}

func TestBuildContentOPFIncludesSpineEntryPerChapterExactlyOnce(t *testing.T) {
	book := testBook()
	opf := string(buildContentOPF(book, ProfileStandard, "book-42"))

	assert.Contains(t, opf, `idref="chapter-001"`)
	assert.Contains(t, opf, `idref="chapter-002"`)
	assert.Contains(t, opf, "<dc:title>Sample Book</dc:title>")
	assert.Contains(t, opf, "<dc:creator>Jane Doe</dc:creator>")
}

func TestSanitizeIDReplacesNonAlphanumerics(t *testing.T) {
	assert.Equal(t, "chapter-002-inline-0-css", sanitizeID("chapter-002-inline-0.css"))
}

func TestMimeForExt(t *testing.T) {
	assert.Equal(t, "image/png", mimeForExt(".png"))
	assert.Equal(t, "image/svg+xml", mimeForExt(".svg"))
	assert.Equal(t, "image/jpeg", mimeForExt(".jpg"))
}
