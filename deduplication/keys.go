package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// NaturalKey returns the dedup key of an item: the normalized absolute URL when
// one is available, otherwise scopeID joined with the filename token.
func NaturalKey(scopeID, link, fallbackToken string) string {
	if u := NormalizeURL(link); u != "" && isAbsolute(u) {
		return u
	}
	token := strings.TrimSpace(fallbackToken)
	if token == "" {
		token = path.Base(strings.TrimSpace(link))
	}
	return scopeID + ":" + token
}

// ScopedHash hashes a natural key together with its scope so identical keys in
// different scopes never collide in the prefilter.
func ScopedHash(scopeID, naturalKey string) string {
	h := sha256.Sum256([]byte(scopeID + "|" + naturalKey))
	return hex.EncodeToString(h[:])
}

// NormalizeTitle collapses whitespace and lowercases t.
func NormalizeTitle(t string) string {
	t = strings.TrimSpace(t)
	t = strings.ToLower(t)
	// collapse multiple whitespace
	fields := strings.Fields(t)
	return strings.Join(fields, " ")
}

// NormalizeURL lowercases scheme and host, drops the fragment and common
// tracking parameters, and trims a trailing slash.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		// fallback: lowercase and trim
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}

func isAbsolute(u string) bool {
	p, err := url.Parse(u)
	return err == nil && p.Scheme != "" && p.Host != ""
}
