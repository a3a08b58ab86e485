// Package netx builds the outbound HTTP client shared by the planner, the
// summarizer and the speech/search service clients.
package netx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewHTTPClient returns a client that routes non-local traffic through
// proxyAddr. Empty proxyAddr means direct connections. socks/socks5 proxies
// go through golang.org/x/net/proxy; http(s) proxies use the transport's
// CONNECT support.
func NewHTTPClient(proxyAddr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyAddr != "" {
		u, err := ParseProxyURL(proxyAddr)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			dial, err := socksDialer(u)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			transport.DialContext = dial
		case "http", "https":
			transport.Proxy = func(req *http.Request) (*url.URL, error) {
				if IsLocalHost(req.URL.Hostname()) {
					return nil, nil
				}
				return u, nil
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// ParseProxyURL parses a proxy address, normalizing socks:// to socks5://.
func ParseProxyURL(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", addr)
	}
	return u, nil
}

func socksDialer(u *url.URL) (DialContextFunc, error) {
	direct := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy dialer for %s does not support contexts", u.Scheme)
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if IsLocalHost(host) {
			return direct.DialContext(ctx, network, addr)
		}
		return cd.DialContext(ctx, network, addr)
	}, nil
}

// IsLocalHost reports whether host is a loopback or private address. Names
// are not resolved; only "localhost" and IP literals are recognised.
func IsLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
