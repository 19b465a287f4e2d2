package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
)

// NewCheckOrigin returns the upgrader's origin check. Browsers on other sites must not
// be able to join the broadcast, so only the demo page's own origin (from appURL) and
// requests without an Origin header are accepted. Development mode also admits
// localhost on any port.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	pageOrigin := originOf(appURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "", origin == pageOrigin:
			return true
		case isDevelopment && isLoopback(origin):
			return true
		}

		slog.Warn("Rejected WebSocket upgrade from foreign origin", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
