package epub

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/blampe/shelfpress/internal/bookfetch"
	"github.com/klauspost/compress/flate"
)

// registerCompressor installs klauspost/compress's flate writer as zw's
// Deflate compressor. archive/zip already registers a package-wide
// Deflate compressor, so the override is made per writer.
func registerCompressor(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

// Build assembles one profile variant of book into outputPath. assetDir
// must already contain the book's downloaded Images/ and Styles/ files
// (the asset downloader's output).
func Build(book bookfetch.Book, bookID, assetDir, outputPath string, profile Profile) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()
	registerCompressor(zw)

	if err := writeStored(zw, "mimetype", []byte("application/epub+zip")); err != nil {
		return err
	}
	if err := writeDeflated(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		return err
	}
	if err := writeDeflated(zw, "OEBPS/content.opf", buildContentOPF(book, profile, bookID)); err != nil {
		return err
	}
	if err := writeDeflated(zw, "OEBPS/nav.xhtml", buildNavDocument(book)); err != nil {
		return err
	}
	if err := writeDeflated(zw, "OEBPS/"+stylesheetName(profile), []byte(cssFor(profile))); err != nil {
		return err
	}

	if len(book.CoverBytes) > 0 {
		coverHref := "Images/cover" + book.CoverExt
		if err := writeDeflated(zw, "OEBPS/cover.xhtml", buildCoverPage(coverHref)); err != nil {
			return err
		}
		if err := writeDeflated(zw, "OEBPS/"+coverHref, book.CoverBytes); err != nil {
			return err
		}
	}

	stylesheetHref := stylesheetName(profile)
	for _, ch := range book.Chapters {
		// The sanitizer drops <link> tags from the body, so the chapter's
		// downloaded external stylesheets are linked from its <head>,
		// followed by its extracted inline ones.
		var links []string
		for name := range ch.Stylesheets {
			if _, ok := book.Stylesheets[name]; ok && name != stylesheetName(profile) {
				links = append(links, name)
			}
		}
		sort.Strings(links)
		links = append(links, ch.ExtraStylesheets...)
		rendered := renderChapterXHTML(ch.Title, stylesheetHref, links, ch.Body)
		if err := writeDeflated(zw, "OEBPS/"+ch.Filename, rendered); err != nil {
			return err
		}
	}

	for name := range book.Images {
		if err := copyFromDisk(zw, filepath.Join(assetDir, "Images", name), "OEBPS/Images/"+name); err != nil {
			continue // image failures were already isolated by the asset downloader
		}
	}
	for name := range book.Stylesheets {
		if name == stylesheetName(profile) {
			continue
		}
		if err := copyFromDisk(zw, filepath.Join(assetDir, "Styles", name), "OEBPS/Styles/"+name); err != nil {
			continue // missing stylesheet is simply omitted, per the downloader's contract
		}
	}
	for name, css := range book.InlineStyles {
		if err := writeDeflated(zw, "OEBPS/Styles/"+name, css); err != nil {
			return err
		}
	}

	return nil
}

func writeStored(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeDeflated(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func copyFromDisk(zw *zip.Writer, srcPath, zipName string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return writeDeflated(zw, zipName, data)
}
