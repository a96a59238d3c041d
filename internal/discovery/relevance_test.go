package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelevantFormatFilter(t *testing.T) {
	c := candidate{Title: "A Long Enough Title", Format: "audiobook", Subjects: []string{"golang"}}
	assert.False(t, relevant(c, "golang"))

	c.Format = "ebook"
	assert.True(t, relevant(c, "golang"))

	c.Format = ""
	assert.True(t, relevant(c, "golang"))
}

func TestRelevantLanguageFilter(t *testing.T) {
	c := candidate{Title: "A Long Enough Title", Language: "fre", Subjects: []string{"golang"}}
	assert.False(t, relevant(c, "golang"))

	c.Language = "eng"
	assert.True(t, relevant(c, "golang"))

	c.Language = ""
	assert.True(t, relevant(c, "golang"))
}

func TestRelevantTitleLengthByISBNPresence(t *testing.T) {
	short := candidate{Title: "Go 101", Subjects: []string{"golang"}}
	assert.False(t, relevant(short, "golang"), "short title without ISBN should be rejected")

	withISBN := candidate{Title: "Go 101", ISBN: "9781234567897"}
	assert.True(t, relevant(withISBN, "golang"), "short title with a valid ISBN should pass the relaxed minimum")
}

func TestRelevantRejectPatterns(t *testing.T) {
	cases := []struct {
		name   string
		title  string
		reject bool
	}{
		{"numbered chapter heading", "Chapter 3: Getting Started", true},
		{"roman numeral part heading", "Part II: Advanced Topics", true},
		{"numeric part heading", "Part 2: Advanced Topics", true},
		{"appendix", "Appendix A: Reference Tables", true},
		{"glossary", "Glossary of Terms", true},
		{"not a reject pattern despite containing Parts", "Engineering Leadership: The Hard Parts", false},
		{"not a reject pattern despite containing chapter as a word", "Chapterhouse: Dune", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := candidate{Title: tc.title, ISBN: "9781234567897"}
			got := relevant(c, "fiction")
			assert.Equal(t, !tc.reject, got)
		})
	}
}

func TestRelevantSubjectMatch(t *testing.T) {
	c := candidate{Title: "A Long Enough Title About Rust", Subjects: []string{"programming-languages"}}
	assert.False(t, relevant(c, "rust"))

	c.Subjects = []string{"rust-lang", "systems programming"}
	assert.True(t, relevant(c, "rust lang"))
}

func TestSkillVariants(t *testing.T) {
	variants := skillVariants("machine learning")
	assert.Contains(t, variants, "machine learning")
	assert.Contains(t, variants, "machine-learning")
	assert.Contains(t, variants, "machine_learning")
	assert.Contains(t, variants, "machine+learning")
}
