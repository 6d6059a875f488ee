package proxy

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// Forwarder is a loopback HTTP proxy that relays to an authenticated
// upstream. Chromium's --proxy-server flag drops embedded credentials, so
// the browser is pointed at the forwarder instead and the forwarder injects
// Proxy-Authorization on the way upstream. CONNECT tunnels are relayed
// verbatim; nothing is inspected.
type Forwarder struct {
	upstream *url.URL
	logger   *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewForwarder builds a forwarder for an http upstream carrying credentials.
// SOCKS5 upstreams do not need one since Chromium speaks socks5 natively
// without auth and authenticated SOCKS5 goes through the probe path only.
func NewForwarder(upstreamURL string, logger *zap.Logger) (*Forwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := ParseProxyURL(upstreamURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("forwarder requires an http upstream, got %q", u.Scheme)
	}
	if u.User == nil {
		return nil, fmt.Errorf("upstream %s carries no credentials; point the browser at it directly", ServerAddress(u))
	}
	return &Forwarder{
		upstream: u,
		logger:   logger.Named("proxy_forwarder"),
	}, nil
}

// Start binds a loopback listener and serves until Stop. It returns the
// address to hand to the browser as its proxy server.
func (f *Forwarder) Start(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener != nil {
		return f.listener.Addr().String(), nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to bind forwarder listener: %w", err)
	}

	authHeader := basicProxyAuth(f.upstream)
	bare := *f.upstream
	bare.User = nil

	prx := goproxy.NewProxyHttpServer()
	prx.Logger = goproxyLogger{f.logger}
	// Plain HTTP requests relay through the transport's proxy hop; the
	// userinfo on the URL makes net/http attach Proxy-Authorization itself.
	prx.Tr = &http.Transport{Proxy: http.ProxyURL(f.upstream)}
	// CONNECT tunnels need the header injected by hand.
	prx.ConnectDial = prx.NewConnectDialToProxyWithHandler(bare.String(), func(req *http.Request) {
		req.Header.Set("Proxy-Authorization", authHeader)
	})

	server := &http.Server{Handler: prx}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			f.logger.Warn("Forwarder stopped serving.", zap.Error(serveErr))
		}
	}()

	f.listener = listener
	f.server = server
	f.logger.Info("Credential-injecting forwarder started.",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", ServerAddress(f.upstream)))
	return listener.Addr().String(), nil
}

// Addr returns the bound address, or empty before Start.
func (f *Forwarder) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop shuts the forwarder down, draining in-flight requests until ctx ends.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	server := f.server
	f.server = nil
	f.listener = nil
	f.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop forwarder: %w", err)
	}
	return nil
}

func basicProxyAuth(u *url.URL) string {
	password, _ := u.User.Password()
	token := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + password))
	return "Basic " + token
}

// goproxyLogger adapts zap to goproxy's printf-style logger.
type goproxyLogger struct {
	logger *zap.Logger
}

func (l goproxyLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
