package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the caller address. Forwarding headers are honoured
// only when the direct peer is a loopback or private address, which is
// the case behind the reverse proxy the gateway is deployed with.
func GetClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !trustedProxy(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}
	return host
}

func trustedProxy(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}
