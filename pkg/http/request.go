package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver extracts the real client IP address from requests.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is a
// trusted proxy, so clients cannot spoof their identity with headers.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses the trusted proxy CIDR ranges.
func NewIPResolver(trustedProxies []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", cidr, err)
		}
		r.trusted = append(r.trusted, ipNet)
	}
	return r, nil
}

// ClientIP returns the caller's address.
//
// Flow:
// 1. If request is from trusted proxy, use the first valid X-Forwarded-For entry
// 2. If request is from trusted proxy, use X-Real-IP
// 3. Fall back to RemoteAddr
func (res *IPResolver) ClientIP(r *http.Request) string {
	remoteIP := remoteAddr(r)

	if res != nil && res.isTrusted(remoteIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if net.ParseIP(ip) != nil {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	return remoteIP
}

// remoteAddr strips the port from RemoteAddr when present.
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (res *IPResolver) isTrusted(ip string) bool {
	if len(res.trusted) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range res.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
