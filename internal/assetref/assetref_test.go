package assetref

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteCSSImageURLsRewritesAndResolves(t *testing.T) {
	css := `.cover { background: url('bg.png') no-repeat; }
.icon { background-image: url(icons/star.svg); }
.inline { background: url("data:image/png;base64,AAA") ; }`

	rewritten, images := RewriteCSSImageURLs(css, "https://cdn.example.com/book-42/assets", "Images")

	assert.Contains(t, rewritten, `url(Images/bg.png)`)
	assert.Contains(t, rewritten, `url(Images/star.svg)`)
	assert.Contains(t, rewritten, `data:image/png;base64,AAA`, "data URIs are left untouched")

	assert.Equal(t, "https://cdn.example.com/book-42/assets/bg.png", images["bg.png"])
	assert.Equal(t, "https://cdn.example.com/book-42/assets/icons/star.svg", images["star.svg"])
	assert.Len(t, images, 2)
}

func TestRewriteCSSImageURLsNoReferences(t *testing.T) {
	css := `body { color: red; }`
	rewritten, images := RewriteCSSImageURLs(css, "https://cdn.example.com", "Images")
	assert.Equal(t, css, rewritten)
	assert.Empty(t, images)
}

func TestSanitizeBasename(t *testing.T) {
	assert.Equal(t, "bg.png", SanitizeBasename("/assets/bg.png"))
	assert.Equal(t, "star.svg", SanitizeBasename("icons/star.svg?v=2"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/assets/bg.png", Resolve("https://cdn.example.com/assets", "bg.png"))
	assert.Equal(t, "https://cdn.example.com/assets/bg.png", Resolve("https://cdn.example.com/assets/", "bg.png"))
}
