package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// opfManifest mirrors the subset of content.opf's structure this package
// writes -- enough to check the packaging invariants without a full
// OPF/EPUB3 schema implementation.
type opfManifest struct {
	XMLName  xml.Name `xml:"package"`
	Manifest struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// VerifyPackage re-opens a built .epub and checks the packager's
// invariants hold: every manifest entry's href resolves to a real zip
// entry, the spine references only ids present in the manifest, every
// chapter in the manifest appears in the spine exactly once, and every
// navigation-document hyperlink target resolves within the package.
func VerifyPackage(epubPath string) error {
	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", epubPath, err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	opfFile, ok := entries["OEBPS/content.opf"]
	if !ok {
		return fmt.Errorf("%s: missing OEBPS/content.opf", epubPath)
	}
	var opf opfManifest
	if err := decodeXML(opfFile, &opf); err != nil {
		return fmt.Errorf("%s: parsing content.opf: %w", epubPath, err)
	}

	byID := make(map[string]string, len(opf.Manifest.Items))
	chapterIDs := map[string]bool{}
	for _, item := range opf.Manifest.Items {
		byID[item.ID] = item.Href
		if strings.HasPrefix(item.ID, "chapter-") {
			chapterIDs[item.ID] = true
		}
		if _, ok := entries["OEBPS/"+item.Href]; !ok {
			return fmt.Errorf("%s: manifest item %q (href %q) has no matching zip entry", epubPath, item.ID, item.Href)
		}
	}

	seenInSpine := map[string]bool{}
	for _, ref := range opf.Spine.ItemRefs {
		if ref.IDRef == "cover-page" {
			continue
		}
		if _, ok := byID[ref.IDRef]; !ok {
			return fmt.Errorf("%s: spine references unknown manifest id %q", epubPath, ref.IDRef)
		}
		if seenInSpine[ref.IDRef] {
			return fmt.Errorf("%s: spine references %q more than once", epubPath, ref.IDRef)
		}
		seenInSpine[ref.IDRef] = true
	}
	for id := range chapterIDs {
		if !seenInSpine[id] {
			return fmt.Errorf("%s: manifest chapter %q is missing from the spine", epubPath, id)
		}
	}

	navFile, ok := entries["OEBPS/nav.xhtml"]
	if !ok {
		return fmt.Errorf("%s: missing OEBPS/nav.xhtml", epubPath)
	}
	navBody, err := readAll(navFile)
	if err != nil {
		return fmt.Errorf("%s: reading nav.xhtml: %w", epubPath, err)
	}
	for _, href := range extractHrefs(string(navBody)) {
		target, _, _ := strings.Cut(href, "#")
		if target == "" {
			continue
		}
		if _, ok := entries["OEBPS/"+target]; !ok {
			return fmt.Errorf("%s: nav.xhtml links to %q, which is not in the package", epubPath, href)
		}
	}

	return nil
}

func decodeXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

func readAll(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

var hrefAttr = `href="`

// extractHrefs is a narrow scan for href="..." attribute values; the nav
// document is generated by buildNavDocument and never carries untrusted
// markup, so a full HTML parse isn't needed just to re-check its own
// output.
func extractHrefs(doc string) []string {
	var out []string
	rest := doc
	for {
		idx := strings.Index(rest, hrefAttr)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(hrefAttr):]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			break
		}
		out = append(out, rest[:end])
		rest = rest[end+1:]
	}
	return out
}
