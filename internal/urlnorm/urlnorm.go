// Package urlnorm canonicalizes URLs and derives host and registrable-domain
// names from them. The canonical form is the crawler's only deduplication key.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrInvalidURL is returned when the input cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsupportedScheme is returned for anything other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// trackingParams are query keys stripped during normalization in addition to
// every key starting with "utm_".
var trackingParams = map[string]struct{}{
	"fbclid":        {},
	"gclid":         {},
	"ref":           {},
	"source":        {},
	"mc_cid":        {},
	"mc_eid":        {},
	"_ga":           {},
	"_gid":          {},
	"hsCtaTracking": {},
}

// nonHTMLExtensions are path suffixes the frontier never admits.
var nonHTMLExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".exe": {}, ".dmg": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {},
	".css": {}, ".js": {}, ".woff": {}, ".woff2": {},
}

// Normalize returns the canonical form of raw.
//
// Scheme and host are lower-cased, default ports dropped, the fragment and
// user info removed, dot segments resolved, repeated and trailing slashes
// collapsed (root stays "/"), tracking parameters removed and the remaining
// query parameters sorted by key. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", ErrInvalidURL
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostport := host
	if port != "" {
		hostport = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		hostport = "[" + host + "]"
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     hostport,
		Path:     cleanPath(u.Path),
		RawQuery: cleanQuery(u.RawQuery),
	}
	return out.String(), nil
}

// AreEquivalent reports whether a and b normalize to the same canonical URL.
// Invalid URLs are never equivalent to anything.
func AreEquivalent(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

func cleanPath(p string) string {
	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return "/" + strings.Join(stack, "/")
}

type queryParam struct {
	key   string
	value string
}

func cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}

	var params []queryParam
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		if key == "" || isTrackingParam(key) {
			continue
		}
		params = append(params, queryParam{key: key, value: value})
	}

	sort.SliceStable(params, func(i, j int) bool {
		return params[i].key < params[j].key
	})

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.value == "" {
			parts = append(parts, url.QueryEscape(p.key))
			continue
		}
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(strings.ToLower(key), "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// IsLikelyHTML reports whether the URL path does not end in a known static or
// binary file extension.
func IsLikelyHTML(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, blocked := nonHTMLExtensions[ext]
	return !blocked
}

// ExtractDomain returns the lower-cased host of a URL or bare host string,
// without port. It returns "" when no host can be found.
func ExtractDomain(urlOrHost string) string {
	s := strings.TrimSpace(urlOrHost)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.TrimPrefix(strings.TrimSuffix(s, "]"), "[")
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

// ExtractRegistrableDomain returns the eTLD+1 of a URL or host using the
// public suffix list, so "a.b.example.co.uk" yields "example.co.uk". IP
// addresses and hosts that are themselves public suffixes are returned as is.
func ExtractRegistrableDomain(urlOrHost string) string {
	host := ExtractDomain(urlOrHost)
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// MatchesDomain reports whether the host of rawURL equals domain or is one of
// its subdomains.
func MatchesDomain(rawURL, domain string) bool {
	host := ExtractDomain(rawURL)
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// SameDomain reports whether both URLs have the same host.
func SameDomain(a, b string) bool {
	ha := ExtractDomain(a)
	return ha != "" && ha == ExtractDomain(b)
}

// SameRegistrableDomain reports whether both URLs share an eTLD+1.
func SameRegistrableDomain(a, b string) bool {
	ra := ExtractRegistrableDomain(a)
	return ra != "" && ra == ExtractRegistrableDomain(b)
}
