package epub

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
)

// chapterPolicy sanitizes chapter HTML fetched leniently from the
// provider before it's repackaged as strict XHTML: it allows the common
// prose/structural tags a chapter body needs and nothing that could carry
// script or unsanitized styles.
func chapterPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("id").Globally()
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	p.AllowElements("body", "p", "div", "span", "section", "article",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "em", "strong", "b", "i", "u",
		"sub", "sup", "br", "hr", "table", "thead", "tbody", "tr", "td", "th",
		"figure", "figcaption", "a", "img")
	return p
}

var sanitizer = chapterPolicy()

// renderChapterXHTML wraps a chapter's extracted body fragment in a
// strict XHTML document skeleton, sanitizing it first since source HTML
// is parsed leniently but the package format requires well-formed XHTML.
// extraStylesheetHrefs names Styles/ files (the chapter's external
// stylesheets and the inline <style> blocks pulled out of it during
// fetch) linked in addition to the profile's bundled stylesheetHref.
func renderChapterXHTML(title string, stylesheetHref string, extraStylesheetHrefs []string, body []byte) []byte {
	clean := sanitizer.SanitizeBytes(body)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">` + "\n<head>\n")
	buf.WriteString(fmt.Sprintf("<title>%s</title>\n", escapeText(title)))
	buf.WriteString(fmt.Sprintf(`<link rel="stylesheet" type="text/css" href="%s" />`+"\n", stylesheetHref))
	for _, href := range extraStylesheetHrefs {
		buf.WriteString(fmt.Sprintf(`<link rel="stylesheet" type="text/css" href="Styles/%s" />`+"\n", href))
	}
	buf.WriteString("</head>\n")
	buf.Write(clean)
	buf.WriteString("\n</html>\n")
	return buf.Bytes()
}

func escapeText(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
