package proxy

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"
)

const (
	probeTimeout      = 10 * time.Second
	probeMaxRedirects = 5
	probeBodyLimit    = 4 << 10
)

// DefaultProbeURL is a lightweight endpoint that echoes the egress address.
const DefaultProbeURL = "https://api.ipify.org?format=text"

// ProbeResult reports one connectivity check through a proxy.
type ProbeResult struct {
	StatusCode int           `json:"statusCode"`
	Latency    time.Duration `json:"latency"`
	Body       string        `json:"body"`
}

// Probe fetches targetURL through the given proxy and returns status, latency
// and a decoded body sample. The request advertises gzip and brotli and the
// body is decompressed accordingly.
func Probe(ctx context.Context, proxyURL, targetURL string, logger *zap.Logger) (*ProbeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := ParseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	if targetURL == "" {
		targetURL = DefaultProbeURL
	}

	transport, err := transportFor(u)
	if err != nil {
		return nil, err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   probeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= probeMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", probeMaxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe through %s failed: %w", ServerAddress(u), err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode probe body: %w", err)
	}

	logger.Debug("Proxy probe completed.",
		zap.String("proxy", ServerAddress(u)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency))
	return &ProbeResult{
		StatusCode: resp.StatusCode,
		Latency:    latency,
		Body:       string(body),
	}, nil
}

// transportFor builds an HTTP transport that egresses through the proxy.
// SOCKS5 uses an x/net dialer since net/http has no native client support
// for it with credentials.
func transportFor(u *url.URL) (*http.Transport, error) {
	transport := &http.Transport{
		// The probe decodes manually so the advertised encodings survive.
		DisableCompression: true,
	}
	switch u.Scheme {
	case "http":
		transport.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *xproxy.Auth
		if user := u.User; user != nil {
			password, _ := user.Password()
			auth = &xproxy.Auth{User: user.Username(), Password: password}
		}
		dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to build socks5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("bad gzip stream: %w", err)
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(reader, probeBodyLimit))
}
