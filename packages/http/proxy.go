package http

import (
	"net/url"
	"strings"

	"github.com/restwire/restwire/packages/core/config"
)

// IgnoreProxy reports whether the target URL matches the proxy exclusion
// list. Entries are "host" or "host:port", compared case-insensitively. A
// target without an explicit port matches only bare-host entries; a target
// with a port matches bare-host entries or entries whose port is equal.
func IgnoreProxy(u *url.URL, excludeList []string) bool {
	if len(excludeList) == 0 {
		return false
	}

	excluded := make(map[string]struct{}, len(excludeList))
	for _, entry := range excludeList {
		excluded[strings.ToLower(strings.TrimSpace(entry))] = struct{}{}
	}

	hostname := strings.ToLower(u.Hostname())
	port := u.Port()

	for entry := range excluded {
		entryHost, entryPort, hasPort := strings.Cut(entry, ":")
		if entryHost != hostname {
			continue
		}
		if port == "" {
			if !hasPort {
				return true
			}
			continue
		}
		if !hasPort || entryPort == port {
			return true
		}
	}
	return false
}

// ResolveProxy attaches a forwarding agent to opts when settings name a
// proxy the target does not bypass. Only http and https proxy URLs produce
// an agent; anything else is ignored. The agent tunnels for TLS targets and
// forwards plainly otherwise.
func ResolveProxy(opts *TransportOptions, u *url.URL, settings *config.Settings) {
	if settings == nil || settings.Proxy == "" {
		return
	}
	if IgnoreProxy(u, settings.ExcludeHostsForProxy) {
		return
	}

	proxyURL, err := url.Parse(settings.Proxy)
	if err != nil {
		return
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return
	}

	opts.Proxy = &ProxyAgent{
		URL:       proxyURL,
		StrictSSL: settings.GetProxyStrictSSL(),
		Tunnel:    u.Scheme == "https",
	}
}
