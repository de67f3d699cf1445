package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/auth/ratelimit"
)

// RateLimit enforces a per-client request budget keyed by remote IP. Health
// and metrics endpoints are never limited. X-Forwarded-For is only read when
// the connection comes from one of trustedProxies.
func RateLimit(limiter *ratelimit.Limiter, limit int, trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(clientKey(r, trustedProxies), limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the connection's peer address. Behind a trusted proxy it is
// the right-most X-Forwarded-For hop that is not itself a trusted proxy.
func clientKey(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			// A garbled hop was written by the client; stop at the last good one.
			return host
		}
		if !isTrusted(addr, trusted) {
			return addr.Unmap().String()
		}
		host = addr.Unmap().String()
	}
	return host
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
