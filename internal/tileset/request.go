package tileset

import (
	"net/url"
	"strings"
)

const (
	KeyParam     = "key"
	SessionParam = "session"
)

// RequestContext carries the credentials every request must present. It is
// passed by value down the walk and never mutated.
type RequestContext struct {
	APIKey       string
	SessionToken string
}

func NewRequestContext(apiKey string) RequestContext {
	return RequestContext{APIKey: apiKey}
}

// WithSession returns a copy carrying token.
func (r RequestContext) WithSession(token string) RequestContext {
	r.SessionToken = token
	return r
}

// RewriteURI appends the key and session query parameters to uri unless it
// already carries them. Empty values are never appended. Applying it twice
// yields the same result as applying it once.
func (r RequestContext) RewriteURI(uri string) string {
	if uri == "" || strings.HasPrefix(uri, "data:") {
		return uri
	}

	base, fragment := uri, ""
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		base, fragment = uri[:i], uri[i:]
	}

	query := ""
	if i := strings.IndexByte(base, '?'); i >= 0 {
		query = base[i+1:]
	}
	present, _ := url.ParseQuery(query)

	for _, param := range []struct{ name, value string }{
		{KeyParam, r.APIKey},
		{SessionParam, r.SessionToken},
	} {
		if param.value == "" || present.Has(param.name) {
			continue
		}
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
			if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
				sep = ""
			}
		}
		base += sep + param.name + "=" + url.QueryEscape(param.value)
	}
	return base + fragment
}

// StripCredentials removes the key and session parameters, which gives a
// stable identity for a resource across sessions.
func StripCredentials(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if !q.Has(KeyParam) && !q.Has(SessionParam) {
		return rawURL
	}
	q.Del(KeyParam)
	q.Del(SessionParam)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResolveReference resolves ref against the URL of the document holding it.
func ResolveReference(base string, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() || base == "" {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// SessionFromURI returns the session parameter carried by uri, if any. The
// service hands out the session token inside the content URIs of the root
// document as well as in a cookie.
func SessionFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Query().Get(SessionParam)
}
