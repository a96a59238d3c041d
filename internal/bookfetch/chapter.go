package bookfetch

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/blampe/shelfpress/internal/assetref"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/shelferrors"
	"golang.org/x/net/html"
)

var headingSelectors = []string{"//h1", "//h2", "//h3"}

// FetchChapter retrieves one chapter's HTML body, parses it leniently,
// determines its in-file fragment id, extracts every stylesheet and image
// reference, and rewrites those references to their packaged locations.
// Cross-chapter links keep their basename (with .html normalized to
// .xhtml) and any fragment they carried.
func FetchChapter(ctx context.Context, client *session.Client, index int, desc chapterDescriptor) (ChapterNode, error) {
	resp, err := client.Get(ctx, desc.ContentURL, session.Options{
		Headers: map[string]string{"Accept": "text/html"},
	})
	if err != nil {
		return ChapterNode{}, err
	}
	defer resp.Body.Close()

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return ChapterNode{}, shelferrors.Wrap(shelferrors.ParseError, fmt.Sprintf("parsing chapter %d", index), err)
	}

	return buildChapterNode(doc, index, desc)
}

// buildChapterNode walks an already-parsed chapter document, extracting
// its heading, stylesheet/image references, and cross-chapter links, and
// rewrites the document in place to point at the packaged layout.
func buildChapterNode(doc *html.Node, index int, desc chapterDescriptor) (ChapterNode, error) {
	fragment := firstHeadingFragment(doc, index)
	title := firstHeadingText(doc)

	node := ChapterNode{
		Filename:     fmt.Sprintf("chapter-%03d.xhtml", index),
		HTTPURL:      desc.ContentURL,
		AssetBaseURL: desc.AssetBaseURL,
		Fragment:     fragment,
		Title:        title,
		Stylesheets:  map[string]string{},
		Images:       map[string]string{},
		InlineStyles: map[string][]byte{},
	}

	for _, link := range htmlquery.Find(doc, "//link[@rel='stylesheet']") {
		href := htmlquery.SelectAttr(link, "href")
		if href == "" {
			continue
		}
		local := strings.TrimSuffix(assetref.SanitizeBasename(href), path.Ext(href)) + ".css"
		node.Stylesheets[local] = resolveAssetURL(desc.AssetBaseURL, href)
		setAttr(link, "href", "Styles/"+local)
	}

	// Every inline <style> block is extracted the same way an external
	// stylesheet is -- its own Styles/ file, linked from the chapter,
	// with any CSS-referenced image pulled out to Images/.
	for styleIdx, style := range htmlquery.Find(doc, "//style") {
		css := htmlquery.InnerText(style)
		rewritten, images := assetref.RewriteCSSImageURLs(css, desc.AssetBaseURL, "Images")
		for local, src := range images {
			node.Images[local] = src
		}
		local := fmt.Sprintf("chapter-%03d-inline-%d.css", index, styleIdx)
		node.InlineStyles[local] = []byte(rewritten)
		node.ExtraStylesheets = append(node.ExtraStylesheets, local)
		if style.Parent != nil {
			style.Parent.RemoveChild(style)
		}
	}

	for _, img := range htmlquery.Find(doc, "//img") {
		src := htmlquery.SelectAttr(img, "src")
		if src == "" {
			continue
		}
		local := assetref.SanitizeBasename(src)
		node.Images[local] = resolveAssetURL(desc.AssetBaseURL, src)
		setAttr(img, "src", "Images/"+local)
	}

	for _, a := range htmlquery.Find(doc, "//a[@href]") {
		href := htmlquery.SelectAttr(a, "href")
		if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			continue
		}
		setAttr(a, "href", rewriteChapterLink(href))
	}

	var buf bytes.Buffer
	body := htmlquery.FindOne(doc, "//body")
	if body != nil {
		if err := html.Render(&buf, body); err != nil {
			return ChapterNode{}, shelferrors.Wrap(shelferrors.ParseError, fmt.Sprintf("rendering chapter %d", index), err)
		}
	}
	node.Body = buf.Bytes()

	return node, nil
}

// rewriteChapterLink normalizes a cross-chapter hyperlink: its basename
// is preserved with .html replaced by .xhtml; any fragment is retained.
func rewriteChapterLink(href string) string {
	base, fragment, _ := strings.Cut(href, "#")
	if base == "" {
		return "#" + fragment
	}
	if strings.HasSuffix(base, ".html") {
		base = strings.TrimSuffix(base, ".html") + ".xhtml"
	}
	base = assetref.SanitizeBasename(base)
	if fragment != "" {
		return base + "#" + fragment
	}
	return base
}

func firstHeadingText(doc *html.Node) string {
	for _, sel := range headingSelectors {
		if n := htmlquery.FindOne(doc, sel); n != nil {
			return strings.TrimSpace(htmlquery.InnerText(n))
		}
	}
	return ""
}

// firstHeadingFragment returns the first heading's id attribute, assigning
// one deterministically if it has none.
func firstHeadingFragment(doc *html.Node, index int) string {
	for _, sel := range headingSelectors {
		n := htmlquery.FindOne(doc, sel)
		if n == nil {
			continue
		}
		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			return id
		}
		id := "heading-" + strconv.Itoa(index)
		setAttr(n, "id", id)
		return id
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
