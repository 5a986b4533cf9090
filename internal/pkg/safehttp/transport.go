// Package safehttp builds the outbound HTTP client shared by the upstream
// adapters.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures NewClient.
type Options struct {
	// DenyPrivate rejects connections to private, loopback and link-local
	// addresses to reduce SSRF risk from configurable base URLs.
	DenyPrivate bool
	// DialTimeout bounds connection setup; zero means 5s.
	DialTimeout time.Duration
}

// NewClient returns a pooled client safe for concurrent use. It sets no
// overall timeout since streamed responses can run for minutes; callers
// bound requests with their context.
func NewClient(opts Options) *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(NewTransport(opts))}
}

// NewTransport returns the pooled transport underlying NewClient.
func NewTransport(opts Options) *http.Transport {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 20
	t.IdleConnTimeout = 90 * time.Second
	t.DialContext = dialer.DialContext
	if opts.DenyPrivate {
		t.DialContext = denyPrivateDial(dialer)
	}
	return t
}

func denyPrivateDial(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
		}

		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			conn.Close()
			return nil, fmt.Errorf("access to private IP %s is denied", ip)
		}

		return conn, nil
	}
}
