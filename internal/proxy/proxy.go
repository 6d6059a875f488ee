// Package proxy handles per-context upstream proxies: URL validation,
// per-proxy profile directories, connectivity probing, and a loopback
// forwarder for authenticated upstreams that Chromium's --proxy-server
// flag cannot carry credentials to.
package proxy

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ParseProxyURL validates a proxy URL. Only http and socks5 schemes are
// supported; embedded credentials are kept on the returned URL.
func ParseProxyURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("proxy url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q (only http and socks5)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", raw)
	}
	return u, nil
}

// ServerAddress renders the URL the way Chromium's --proxy-server flag wants
// it: scheme://host:port, credentials stripped.
func ServerAddress(u *url.URL) string {
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// ProfileDirFor maps a proxy URL to a stable per-proxy user-data directory
// under baseDir. Sessions cookied under one egress identity must never leak
// into another, so every distinct proxy gets its own profile. An empty proxy
// URL maps to the default profile.
func ProfileDirFor(baseDir, proxyURL string) string {
	if strings.TrimSpace(proxyURL) == "" {
		return filepath.Join(baseDir, "default")
	}
	var b strings.Builder
	for _, r := range proxyURL {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return filepath.Join(baseDir, "proxy_"+b.String())
}
