package discovery

import (
	"regexp"
	"strings"
)

var rejectTitlePrefixes = []string{
	"chapter ", "section ", "lesson ", "unit ", "module ",
}

var rejectTitlePatterns = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`chapter \d+:`,
	`part (i|ii|iii|iv|v):`,
	`part [1-5]:`,
	`section \d+:`,
	`lesson \d+:`,
	`appendix`,
	`glossary`,
	`bibliography`,
	`foreword`,
	`preface`,
	`acknowledgments`,
	`wrap-up`,
}, "|"))

var isbnDigits = regexp.MustCompile(`^\d{9,13}$`)

// skillVariants produces the set of topic-name spellings a candidate's
// subjects/topics field is checked against.
func skillVariants(topic string) []string {
	lower := strings.ToLower(topic)
	return []string{
		topic,
		strings.ReplaceAll(lower, " ", "-"),
		strings.ReplaceAll(lower, " ", "_"),
		strings.ReplaceAll(lower, " ", "+"),
	}
}

// relevant applies the per-candidate filter. It returns false for any
// candidate that should be rejected.
func relevant(c candidate, topic string) bool {
	switch strings.ToLower(c.Format) {
	case "book", "ebook", "":
	default:
		return false
	}

	lang := strings.ToLower(c.Language)
	if lang != "" && !strings.HasPrefix(lang, "en") {
		return false
	}

	hasISBN := isbnDigits.MatchString(c.ISBN)
	minTitleLen := 10
	if hasISBN {
		minTitleLen = 5
	}
	if len(strings.TrimSpace(c.Title)) < minTitleLen {
		return false
	}

	lowerTitle := strings.ToLower(strings.TrimSpace(c.Title))
	for _, prefix := range rejectTitlePrefixes {
		if strings.HasPrefix(lowerTitle, prefix) {
			return false
		}
	}
	if rejectTitlePatterns.MatchString(c.Title) {
		return false
	}

	if hasISBN {
		return true
	}
	return subjectsMatchTopic(c.Subjects, topic)
}

func subjectsMatchTopic(subjects []string, topic string) bool {
	variants := skillVariants(topic)
	for _, s := range subjects {
		lowerSubject := strings.ToLower(s)
		for _, v := range variants {
			if strings.Contains(lowerSubject, strings.ToLower(v)) {
				return true
			}
		}
	}
	return false
}
