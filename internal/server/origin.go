// Package server normalizes and validates HTTP origins for WebSocket
// upgrade requests to enforce the configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// originChecker holds the normalized Origin allow-list for WebSocket
// upgrades. A bare "*" entry allows any origin.
type originChecker struct {
	log      zerolog.Logger
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginChecker(origins []string, logger zerolog.Logger) *originChecker {
	oc := &originChecker{
		log:     logger,
		allowed: make(map[string]struct{}, len(origins)),
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}
	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is the gorilla upgrader's CheckOrigin hook. Requests without an
// Origin header (non-browser agents) are allowed; browser requests must
// match the allow-list.
func (oc *originChecker) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}

	if oc.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(originHeader)
	if ok {
		if _, exists := oc.allowed[normalized]; exists {
			return true
		}
	}

	oc.log.Warn().Str("origin", originHeader).Msg("blocked websocket connection from disallowed origin")
	return false
}
