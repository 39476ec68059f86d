package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/kajix/internal/common"
)

// NormalizeSeed turns user input into the absolute URL a crawl starts from.
// Input without a scheme gets "https://"; only http and https with a host
// are accepted.
func NormalizeSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", common.ErrorBadRequest)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q", common.ErrorBadRequest, raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https urls are supported", common.ErrorBadRequest)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: url %q has no host", common.ErrorBadRequest, raw)
	}
	return u, nil
}

// visitKey is the identity of a URL in the visited set: fragment dropped,
// scheme and host lower-cased, empty path treated as "/".
func visitKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname())
}

// resolveLink makes href absolute against base. Links that do not lead to
// an http(s) page (mailto:, javascript:, tel:) are reported as !ok.
func resolveLink(base *url.URL, href string) (u *url.URL, ok bool, err error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false, err
	}
	u = base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false, nil
	}
	return u, true, nil
}
