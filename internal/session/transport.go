package session

import (
	"net/http"
	"strings"
)

// scopedTransport restricts requests to a particular host: prevents a
// redirect from sending credentials to another domain.
type scopedTransport struct {
	host string
	http.RoundTripper
}

func (t scopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.host
	r.Host = t.host
	return t.RoundTripper.RoundTrip(r)
}

// cookieTransport attaches the jar's current cookies to every outgoing
// request.
type cookieTransport struct {
	jar *Jar
	http.RoundTripper
}

func (t cookieTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	for name, value := range t.jar.Snapshot() {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return t.RoundTripper.RoundTrip(r)
}

// cookieMergeTransport is the sliding-token core: after every response,
// every Set-Cookie header's name/value pair is merged into the jar under
// its mutex before control returns to the caller. This must run even on
// non-2xx responses -- a rotated token can arrive on a 4xx just as easily
// as a 200.
type cookieMergeTransport struct {
	jar *Jar
	http.RoundTripper
}

func (t cookieMergeTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if resp == nil {
		return resp, err
	}

	pairs := map[string]string{}
	for _, raw := range resp.Header.Values("Set-Cookie") {
		name, value, ok := parseSetCookie(raw)
		if ok {
			pairs[name] = value
		}
	}
	t.jar.Merge(pairs)

	return resp, err
}

// parseSetCookie extracts the name=value pair from a Set-Cookie header,
// ignoring attributes (Path, Domain, Expires, ...).
func parseSetCookie(raw string) (name, value string, ok bool) {
	first := raw
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		first = raw[:idx]
	}
	first = strings.TrimSpace(first)
	eq := strings.IndexByte(first, '=')
	if eq <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(first[:eq]), first[eq+1:], true
}
