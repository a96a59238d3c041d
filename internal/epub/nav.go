package epub

import (
	"bytes"
	"fmt"

	"github.com/blampe/shelfpress/internal/bookfetch"
)

// buildNavDocument renders the navigation document: one hyperlink per
// chapter, pointing at its fragment when the chapter has one.
func buildNavDocument(book bookfetch.Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	buf.WriteString("<head><title>Navigation</title></head>\n<body>\n")
	buf.WriteString(`<nav epub:type="toc" id="toc"><ol>` + "\n")

	for _, ch := range book.Chapters {
		title := ch.Title
		if title == "" {
			title = ch.Filename
		}
		target := ch.Filename
		if ch.Fragment != "" {
			target = fmt.Sprintf("%s#%s", ch.Filename, ch.Fragment)
		}
		fmt.Fprintf(&buf, `<li><a href="%s">%s</a></li>`+"\n", target, escapeText(title))
	}

	buf.WriteString("</ol></nav>\n</body>\n</html>\n")
	return buf.Bytes()
}

// buildCoverPage renders a simple cover page referencing the cover image
// at no more than 90% of the viewport height.
func buildCoverPage(coverHref string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">` + "\n<head><title>Cover</title></head>\n<body>\n")
	fmt.Fprintf(&buf, `<img src="%s" alt="Cover" style="max-height:90vh;"/>`+"\n", coverHref)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}
