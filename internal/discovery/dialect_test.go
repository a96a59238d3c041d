package discovery

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

func newCapturingClient(t *testing.T, captured *http.Request, body string) *session.Client {
	t.Helper()
	return session.NewClientWithTransport(
		"upstream.example.com", session.NewJar(), ratelimit.NewPolicy(0, 0, 0), "", 0,
		roundTripFunc(func(r *http.Request) (*http.Response, error) {
			*captured = *r
			return &http.Response{
				StatusCode: 200,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(strings.NewReader(body)),
			}, nil
		}), time.Millisecond,
	)
}

func TestV2DialectEscapesMultiWordTopics(t *testing.T) {
	var captured http.Request
	client := newCapturingClient(t, &captured, `{"results": [], "total": 0, "next": null}`)

	_, err := v2Dialect{}.fetchPage(context.Background(), client, "Engineering Leadership", 0, 100)
	require.NoError(t, err)

	assert.Equal(t, "query=*&topics=Engineering+Leadership&limit=100&page=0", captured.URL.RawQuery)
	assert.NotContains(t, captured.URL.RawQuery, " ")
}

func TestV1DialectEscapesMultiWordTopics(t *testing.T) {
	var captured http.Request
	client := newCapturingClient(t, &captured, `{"results": [], "complete": true}`)

	_, err := v1Dialect{}.fetchPage(context.Background(), client, "Kubernetes Security", 1, 100)
	require.NoError(t, err)

	assert.Equal(t, "q=Kubernetes+Security&rows=100&page=1", captured.URL.RawQuery)
	assert.NotContains(t, captured.URL.RawQuery, " ")
}
