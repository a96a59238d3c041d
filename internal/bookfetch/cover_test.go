package bookfetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/blampe/shelfpress/internal/ratelimit"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCoverVariantsWidthParam(t *testing.T) {
	variants := coverVariants("https://cdn.example.com/cover.jpg?w=200")
	require.Len(t, variants, 2)
	assert.Equal(t, "https://cdn.example.com/cover.jpg?w=800", variants[0])
	assert.Equal(t, "https://cdn.example.com/cover.jpg?w=200", variants[1])
}

func TestCoverVariantsSmallPathSegment(t *testing.T) {
	variants := coverVariants("https://cdn.example.com/small/cover.jpg")
	require.Len(t, variants, 2)
	assert.Equal(t, "https://cdn.example.com/large/cover.jpg", variants[0])
	assert.Equal(t, "https://cdn.example.com/small/cover.jpg", variants[1])
}

func TestCoverVariantsPlainURLHasOnlyFallback(t *testing.T) {
	variants := coverVariants("https://cdn.example.com/cover.jpg")
	assert.Equal(t, []string{"https://cdn.example.com/cover.jpg"}, variants)
}

func TestExtFromURL(t *testing.T) {
	cases := []struct{ raw, want string }{
		{"https://cdn.example.com/cover.png", ".png"},
		{"https://cdn.example.com/cover.gif?x=1", ".gif"},
		{"https://cdn.example.com/cover.webp", ".webp"},
		{"https://cdn.example.com/cover.jpg", ".jpg"},
		{"https://cdn.example.com/cover", ".jpg"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extFromURL(tc.raw), tc.raw)
	}
}

func TestFetchCoverAllVariantsUndersizedKeepsOriginal(t *testing.T) {
	client := session.NewClientWithTransport(
		"cdn.example.com", session.NewJar(), ratelimit.NewPolicy(0, 0, 0), "", 0,
		roundTripFunc(func(r *http.Request) (*http.Response, error) {
			// Every variant is under the size threshold; the body encodes
			// which URL served it so the winner is observable.
			return &http.Response{
				StatusCode: 200,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader("tiny:" + r.URL.RawQuery)),
			}, nil
		}), time.Millisecond,
	)

	b, _, err := FetchCover(context.Background(), client, "https://cdn.example.com/cover.jpg?w=200")
	require.NoError(t, err)
	assert.Equal(t, "tiny:w=200", string(b), "the original URL, tried last, wins when every variant is undersized")
}

func TestFetchCoverEmptyURLReturnsNothing(t *testing.T) {
	client := session.NewClient("example.com", session.NewJar(), ratelimit.NewPolicy(0, 0, 0), "", 0)
	b, ext, err := FetchCover(context.Background(), client, "")
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, "", ext)
}
