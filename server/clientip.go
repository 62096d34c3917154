package server

import (
	"log"
	"net"
	"net/http"
	"strings"
)

// trustedProxies are the networks whose forwarding headers name the client
type trustedProxies []*net.IPNet

// parseTrustedProxies accepts addresses and CIDR blocks; invalid entries are logged and skipped
func parseTrustedProxies(entries []string) trustedProxies {
	var proxies trustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				log.Printf("trusted proxy %q is not an address, ignored", entry)
				continue
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 8 * net.IPv4len
			}
			proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			log.Printf("trusted proxy %q: %s, ignored", entry, err)
			continue
		}
		proxies = append(proxies, network)
	}
	return proxies
}

func (t trustedProxies) contains(address string) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP is the connection address unless it is a trusted proxy; then X-Forwarded-For
// is walked from the right and the first hop that is not a trusted proxy is the client
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.proxies.contains(host) {
		return host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			host = hop
			if !s.proxies.contains(hop) {
				break
			}
		}
		return host
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}
	return host
}
