package channels

import (
	"fmt"
	"net/url"
	"strings"

	"go.mau.fi/whatsmeow"
	"golang.org/x/net/proxy"
)

const (
	proxyDirect = "direct"
	proxySOCKS  = "socks"
	proxyHTTP   = "http"
)

// proxyConfigurer is the proxy surface of *whatsmeow.Client.
type proxyConfigurer interface {
	SetProxyAddress(addr string, opts ...whatsmeow.SetProxyOptions) error
	SetSOCKSProxy(px proxy.Dialer, opts ...whatsmeow.SetProxyOptions)
}

// applyProxy routes the connection through raw when set. Schemes starting
// with "socks" get a SOCKS dialer; anything else is treated as an HTTP(S)
// proxy. It returns the kind of route chosen.
func applyProxy(target proxyConfigurer, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return proxyDirect, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid proxy url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid proxy url %q: scheme and host are required", redactProxy(parsed))
	}

	if strings.HasPrefix(strings.ToLower(parsed.Scheme), "socks") {
		dialer, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return "", fmt.Errorf("build socks dialer: %w", err)
		}
		target.SetSOCKSProxy(dialer, whatsmeow.SetProxyOptions{})
		return proxySOCKS, nil
	}

	if err := target.SetProxyAddress(parsed.String(), whatsmeow.SetProxyOptions{}); err != nil {
		return "", fmt.Errorf("set http proxy: %w", err)
	}
	return proxyHTTP, nil
}

// redactProxy hides proxy credentials before the URL reaches a log line.
func redactProxy(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.User == nil {
		return u.String()
	}
	clone := *u
	clone.User = url.User("***")
	return clone.String()
}
