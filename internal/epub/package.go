package epub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/blampe/shelfpress/internal/bookfetch"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

// manifestEntry is one <item> in the package's manifest.
type manifestEntry struct {
	ID, Href, MediaType string
}

func buildManifest(book bookfetch.Book, profile Profile) []manifestEntry {
	entries := []manifestEntry{
		{ID: "nav", Href: "nav.xhtml", MediaType: "application/xhtml+xml"},
		{ID: "css", Href: stylesheetName(profile), MediaType: "text/css"},
	}
	if len(book.CoverBytes) > 0 {
		entries = append(entries, manifestEntry{ID: "cover-image", Href: "Images/cover" + book.CoverExt, MediaType: mimeForExt(book.CoverExt)})
		entries = append(entries, manifestEntry{ID: "cover-page", Href: "cover.xhtml", MediaType: "application/xhtml+xml"})
	}
	for i := range book.Chapters {
		entries = append(entries, manifestEntry{
			ID:        fmt.Sprintf("chapter-%03d", i+1),
			Href:      book.Chapters[i].Filename,
			MediaType: "application/xhtml+xml",
		})
	}
	for name := range book.Images {
		entries = append(entries, manifestEntry{ID: "img-" + sanitizeID(name), Href: "Images/" + name, MediaType: mimeForExt(extOf(name))})
	}
	for name := range book.Stylesheets {
		if name == stylesheetName(profile) {
			continue
		}
		entries = append(entries, manifestEntry{ID: "style-" + sanitizeID(name), Href: "Styles/" + name, MediaType: "text/css"})
	}
	for name := range book.InlineStyles {
		entries = append(entries, manifestEntry{ID: "style-" + sanitizeID(name), Href: "Styles/" + name, MediaType: "text/css"})
	}
	return entries
}

func sanitizeID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
}

func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx:]
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}

// buildContentOPF renders the package's content.opf: metadata, manifest,
// and spine (the authoritative chapter order from the chapter manifest).
func buildContentOPF(book bookfetch.Book, profile Profile, bookID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id">` + "\n")

	buf.WriteString("<metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	fmt.Fprintf(&buf, "<dc:identifier id=\"book-id\">%s</dc:identifier>\n", escapeText(bookID))
	fmt.Fprintf(&buf, "<dc:title>%s</dc:title>\n", escapeText(book.Metadata.Title))
	for _, author := range book.Metadata.Authors {
		fmt.Fprintf(&buf, "<dc:creator>%s</dc:creator>\n", escapeText(author))
	}
	if book.Metadata.Publisher != "" {
		fmt.Fprintf(&buf, "<dc:publisher>%s</dc:publisher>\n", escapeText(book.Metadata.Publisher))
	}
	if book.Metadata.ISBN != "" {
		fmt.Fprintf(&buf, "<dc:identifier>%s</dc:identifier>\n", escapeText(book.Metadata.ISBN))
	}
	if book.Metadata.Description != "" {
		fmt.Fprintf(&buf, "<dc:description>%s</dc:description>\n", escapeText(book.Metadata.Description))
	}
	for _, subject := range book.Metadata.Subjects {
		fmt.Fprintf(&buf, "<dc:subject>%s</dc:subject>\n", escapeText(subject))
	}
	if book.Metadata.Rights != "" {
		fmt.Fprintf(&buf, "<dc:rights>%s</dc:rights>\n", escapeText(book.Metadata.Rights))
	}
	if book.Metadata.ReleaseDate != "" {
		fmt.Fprintf(&buf, "<dc:date>%s</dc:date>\n", escapeText(book.Metadata.ReleaseDate))
	}
	if len(book.CoverBytes) > 0 {
		buf.WriteString(`<meta name="cover" content="cover-image"/>` + "\n")
	}
	buf.WriteString("</metadata>\n")

	buf.WriteString("<manifest>\n")
	for _, e := range buildManifest(book, profile) {
		fmt.Fprintf(&buf, "<item id=%q href=%q media-type=%q/>\n", e.ID, e.Href, e.MediaType)
	}
	buf.WriteString("</manifest>\n")

	buf.WriteString(`<spine>` + "\n")
	if len(book.CoverBytes) > 0 {
		buf.WriteString(`<itemref idref="cover-page" linear="no"/>` + "\n")
	}
	for i := range book.Chapters {
		fmt.Fprintf(&buf, "<itemref idref=\"chapter-%03d\"/>\n", i+1)
	}
	buf.WriteString("</spine>\n")

	buf.WriteString("</package>\n")
	return buf.Bytes()
}
