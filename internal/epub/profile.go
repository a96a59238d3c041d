// Package epub assembles a fetched Book into one or two e-book package
// variants: a zip container with a fixed OEBPS layout, manifest, spine,
// and navigation document.
package epub

import "github.com/blampe/shelfpress/internal/naming"

// Profile selects a build variant.
type Profile naming.Profile

const (
	ProfileStandard = Profile(naming.ProfileStandard)
	ProfileKindle   = Profile(naming.ProfileKindle)
)

// standardCSS is the bundled stylesheet for the standard profile: minimal
// resets, no pagination hints.
const standardCSS = `body { font-family: serif; margin: 1em; }
h1, h2, h3 { font-family: sans-serif; }
img { max-width: 100%; }
`

// kindleCSS is the bundled stylesheet for the reader-optimized profile:
// forced page breaks at chapter headings, justified body text with
// widow/orphan control, and no first-line indent immediately after a
// heading.
const kindleCSS = `body { font-family: serif; margin: 1em; text-align: justify;
  orphans: 2; widows: 2; }
h1, h2, h3 { font-family: sans-serif; page-break-after: avoid; }
h1 { page-break-before: always; }
h1 + p, h2 + p, h3 + p { text-indent: 0; }
p { text-indent: 1.2em; }
img { max-width: 100%; }
`

func cssFor(p Profile) string {
	if p == ProfileKindle {
		return kindleCSS
	}
	return standardCSS
}

func stylesheetName(p Profile) string {
	if p == ProfileKindle {
		return "kindle.css"
	}
	return "standard.css"
}
