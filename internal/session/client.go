package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blampe/shelfpress/internal/ratelimit"
	"github.com/blampe/shelfpress/internal/shelferrors"
)

// Options configures a single request issued through a Client.
type Options struct {
	Headers map[string]string
	// Stream, when true, returns the response with its body left open for
	// the caller to read incrementally (asset downloads). When false the
	// body is fully buffered before Get returns.
	Stream bool
	// Timeout overrides the client's default read timeout for this
	// request only. Zero means use the default.
	Timeout time.Duration
	// Class selects which rate-limit bucket this request draws from.
	// Zero means the request is not individually paced (book-boundary
	// pacing happens in the job controller, not here).
	Class ratelimit.Class
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
)

// Client issues authenticated, rate-limited, cookie-rotating requests
// against a single upstream host.
type Client struct {
	host   string
	jar    *Jar
	policy *ratelimit.Policy

	httpClient *http.Client

	cookieFile        string
	tokenSaveInterval int
}

// NewClient builds a Client scoped to host, backed by jar for credentials
// and policy for pacing. cookieFile is where PersistCookies writes the jar.
// The client never persists cookies on its own; tokenSaveInterval is only
// reported back through TokenSaveInterval for the job controller's save
// cadence.
func NewClient(host string, jar *Jar, policy *ratelimit.Policy, cookieFile string, tokenSaveInterval int) *Client {
	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	base := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: defaultReadTimeout,
	}
	return NewClientWithTransport(host, jar, policy, cookieFile, tokenSaveInterval, base, 5*time.Second)
}

// NewClientWithTransport is NewClient with the innermost transport (and
// retry backoff base delay) supplied by the caller instead of built from a
// dialer. Tests use this to stub the network boundary with a fake
// http.RoundTripper and a sub-millisecond backoff while still exercising
// the real scopedTransport/cookieTransport/retry chain above it.
func NewClientWithTransport(host string, jar *Jar, policy *ratelimit.Policy, cookieFile string, tokenSaveInterval int, base http.RoundTripper, retryBaseDelay time.Duration) *Client {
	var rt http.RoundTripper = base
	rt = cookieMergeTransport{jar: jar, RoundTripper: rt}
	rt = cookieTransport{jar: jar, RoundTripper: rt}
	rt = ratelimit.NewRetryTransport(rt, 3, retryBaseDelay, nil)
	rt = scopedTransport{host: host, RoundTripper: rt}

	return &Client{
		host:              host,
		jar:               jar,
		policy:            policy,
		httpClient:        &http.Client{Transport: rt, Timeout: defaultReadTimeout},
		cookieFile:        cookieFile,
		tokenSaveInterval: tokenSaveInterval,
	}
}

// Get issues a GET request for path and classifies failures the way
// upstream session handling requires: 401/403 or a JSON endpoint replying
// with HTML both surface as AuthFailed; timeouts and connection resets
// surface as TransportError.
//
// path is normally relative to the client's host, but asset URLs resolved
// off a chapter's asset base (see bookfetch.resolveAssetURL) arrive as
// full URLs instead. scopedTransport pins every request's scheme and host
// to c.host regardless, so a full URL is reduced to its path+query before
// the request is built; anything pointing at a different host would be
// silently redirected to this client's host rather than leaking a request
// there.
func (c *Client) Get(ctx context.Context, path string, opts Options) (*http.Response, error) {
	if opts.Class != "" && c.policy != nil {
		if err := c.policy.Wait(ctx, opts.Class); err != nil {
			return nil, shelferrors.Wrap(shelferrors.TransportError, "rate limit wait canceled", err)
		}
	}

	// Cancellation is observed before a request is issued; a request that
	// has started runs to completion even if ctx is canceled meanwhile.
	if err := ctx.Err(); err != nil {
		return nil, shelferrors.Wrap(shelferrors.TransportError, "request canceled", err)
	}

	path = stripOrigin(path)

	reqCtx := context.WithoutCancel(ctx)
	if !opts.Stream {
		// The caller owns the body lifetime for streamed responses, so a
		// bounded context must not cancel it out from under them.
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultReadTimeout
		}
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "https://"+c.host+path, nil)
	if err != nil {
		return nil, shelferrors.Wrap(shelferrors.TransportError, "building request", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutOrReset(err) {
			return nil, shelferrors.Wrap(shelferrors.TransportError, fmt.Sprintf("GET %s", path), err)
		}
		return nil, shelferrors.Wrap(shelferrors.TransportError, fmt.Sprintf("GET %s", path), err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, shelferrors.New(shelferrors.AuthFailed, fmt.Sprintf("GET %s returned %s", path, resp.Status))
	}

	wantsJSON := strings.Contains(req.Header.Get("Accept"), "json")
	if wantsJSON && strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		resp.Body.Close()
		return nil, shelferrors.New(shelferrors.AuthFailed, fmt.Sprintf("GET %s: JSON endpoint returned HTML", path))
	}

	if !opts.Stream {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, shelferrors.Wrap(shelferrors.TransportError, fmt.Sprintf("reading body for %s", path), err)
		}
		resp.Body = io.NopCloser(strings.NewReader(string(body)))
	}

	return resp, nil
}

// PersistCookies writes the jar to the client's configured cookie file.
// A no-op if no cookie file was configured. The controller calls this
// every TokenSaveInterval successful book downloads (see
// job.Controller.downloadTopic); "a book" -- not "a request" -- is the
// unit the save cadence counts by.
func (c *Client) PersistCookies() error {
	if c.cookieFile == "" {
		return nil
	}
	return c.jar.Persist(c.cookieFile)
}

// TokenSaveInterval reports how many successful book downloads should
// elapse between automatic cookie persistence, per the Config value the
// client was constructed with.
func (c *Client) TokenSaveInterval() int { return c.tokenSaveInterval }

// stripOrigin reduces an absolute URL to its path+query, leaving an
// already-relative path untouched. Get always rebuilds the scheme and
// host from c.host, so only the path+query of an absolute URL is ever
// meaningful here.
func stripOrigin(path string) string {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return path
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	rel := u.Path
	if u.RawQuery != "" {
		rel += "?" + u.RawQuery
	}
	return rel
}

func isTimeoutOrReset(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "context deadline exceeded")
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
