package core

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSMiddleware answers preflight requests and adds CORS headers for
// allowed origins. Origins may be exact, "*", a subdomain wildcard
// ("https://*.example.com") or a port wildcard ("http://localhost:*").
//
//	handler := CORSMiddleware(&cfg.HTTP.CORS)(router)
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config == nil || !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if isOriginAllowed(origin, config.AllowedOrigins) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				if config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if len(config.AllowedMethods) > 0 {
					h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				}
				if len(config.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				}
				if config.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed reports whether origin matches one of the allowed
// patterns. An empty origin is a same-origin request and never matches.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}

		if idx := strings.Index(allowed, "*."); idx >= 0 {
			prefix, suffix := allowed[:idx], allowed[idx+1:]
			if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				sub := strings.TrimSuffix(strings.TrimPrefix(origin, prefix), suffix)
				if sub != "" && !strings.ContainsAny(sub, "/:") {
					return true
				}
			}
		}

		if base, ok := strings.CutSuffix(allowed, ":*"); ok {
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}

	return false
}
