// Package naming derives on-disk folder and file names from topic and
// book identifiers, and answers the existence check that decides whether
// a book has already been downloaded.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var forbiddenChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// topicWordSeparators additionally splits on underscores, which arrive
// in machine-readable topic names (e.g. "machine_learning") as the
// word boundary a human would otherwise express with a space.
var topicWordSeparators = regexp.MustCompile(`[/\\:*?"<>|_]+`)

var acronyms = map[string]string{
	"ai": "AI", "ml": "ML", "api": "API", "ui": "UI", "ux": "UX",
	"sql": "SQL", "css": "CSS", "html": "HTML", "js": "JS",
	"aws": "AWS", "gcp": "GCP",
}

var lowerWords = map[string]bool{
	"and": true, "or": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "the": true,
}

// TopicFolder converts a topic name into its output subfolder name: Title
// Case with preserved acronyms and lowercase conjunctions/prepositions
// when not the first word.
func TopicFolder(topic string) string {
	replaced := topicWordSeparators.ReplaceAllString(topic, " ")
	fields := strings.Fields(replaced)

	words := make([]string, 0, len(fields))
	for i, f := range fields {
		lower := strings.ToLower(f)
		if acr, ok := acronyms[lower]; ok {
			words = append(words, acr)
			continue
		}
		if i > 0 && lowerWords[lower] {
			words = append(words, lower)
			continue
		}
		words = append(words, titleWord(f))
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	// Preserve internal punctuation like "&" untouched; only title-case
	// actual letter runs.
	runes := []rune(strings.ToLower(w))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

// BookFolder derives a book's output folder name from its title and id:
// "<sanitized-title> (<book_id>)" with forbidden characters replaced by
// underscore and trailing dots/spaces trimmed.
func BookFolder(title, bookID string) string {
	sanitized := sanitizeTitle(title)
	return fmt.Sprintf("%s (%s)", sanitized, bookID)
}

func sanitizeTitle(title string) string {
	s := forbiddenChars.ReplaceAllString(title, "_")
	s = strings.TrimRight(s, ". ")
	if s == "" {
		s = "Untitled"
	}
	return s
}

// Profile selects which e-book variant a filename is for.
type Profile string

const (
	ProfileStandard Profile = "standard"
	ProfileKindle   Profile = "kindle"
)

// EPUBFilename derives the filename for one profile variant of a book.
func EPUBFilename(title, firstAuthor string, profile Profile) string {
	base := fmt.Sprintf("%s - %s", sanitizeTitle(title), sanitizeAuthor(firstAuthor))
	if profile == ProfileKindle {
		return base + " (Kindle).epub"
	}
	return base + ".epub"
}

func sanitizeAuthor(author string) string {
	if author == "" {
		author = "Unknown"
	}
	s := forbiddenChars.ReplaceAllString(author, "_")
	return strings.TrimRight(s, ". ")
}

// Exists is the authoritative existence check: for the requested profiles,
// every corresponding EPUB file must be present in the book folder. The
// first author isn't known until metadata is fetched, so this matches by
// glob against the sanitized title prefix rather than an exact filename.
func Exists(bookDir, title string, profiles []Profile) bool {
	for _, p := range profiles {
		pattern := filepath.Join(bookDir, sanitizeTitle(title)+" - *.epub")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return false
		}
		if !anyMatchesProfile(matches, p) {
			return false
		}
	}
	return true
}

func anyMatchesProfile(matches []string, p Profile) bool {
	for _, m := range matches {
		isKindle := strings.HasSuffix(m, " (Kindle).epub")
		if p == ProfileKindle && isKindle {
			return true
		}
		if p == ProfileStandard && !isKindle {
			return true
		}
	}
	return false
}
