package epub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderChapterXHTMLProducesWellFormedBody(t *testing.T) {
	body := []byte(`<body><h1>Intro</h1><p>hello</p></body>`)
	out := renderChapterXHTML("Intro", "standard.css", nil, body)
	s := string(out)

	assert.True(t, strings.Contains(s, "<body>"), s)
	assert.True(t, strings.Contains(s, "</body>"), s)
	assert.True(t, strings.Contains(s, `<title>Intro</title>`))
	assert.True(t, strings.Contains(s, `href="standard.css"`))
}

func TestRenderChapterXHTMLLinksExtraStylesheets(t *testing.T) {
	body := []byte(`<body><p>hi</p></body>`)
	out := renderChapterXHTML("T", "standard.css", []string{"chapter-001-inline-0.css"}, body)
	s := string(out)

	assert.Contains(t, s, `href="Styles/chapter-001-inline-0.css"`)
}

func TestRenderChapterXHTMLStripsScriptTags(t *testing.T) {
	body := []byte(`<body><script>alert(1)</script><p>safe</p></body>`)
	out := renderChapterXHTML("T", "standard.css", nil, body)
	assert.NotContains(t, string(out), "<script")
}
