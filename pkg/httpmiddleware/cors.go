package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	// Browsers hide non-safelisted response headers unless exposed. The
	// storefront client must read the session id it was issued.
	defaultCORSExpose = []string{"X-Session-ID", "X-Request-ID"}
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, PATCH, DELETE and OPTIONS.
	AllowMethods []string
	// AllowHeaders lists allowed request headers. When empty, the preflight's
	// Access-Control-Request-Headers is echoed.
	AllowHeaders []string
	// ExposeHeaders defaults to X-Session-ID and X-Request-ID.
	ExposeHeaders []string
	// AllowCredentials disables the "*" origin: the request origin is echoed instead.
	AllowCredentials bool
	// MaxAge in seconds for preflight caching. Zero omits the header, negative sends "0".
	MaxAge int
}

type corsPolicy struct {
	allowAll    bool
	allowed     map[string]string // lowercase -> configured
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		allowAll:    len(cfg.AllowOrigins) == 0,
		allowed:     make(map[string]string, len(cfg.AllowOrigins)),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			continue
		}
		p.allowed[strings.ToLower(o)] = o
	}
	if p.credentials && p.allowAll {
		p.allowAll = false
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	expose := cfg.ExposeHeaders
	if len(expose) == 0 {
		expose = defaultCORSExpose
	}
	p.methods = strings.Join(methods, ", ")
	p.headers = strings.Join(cfg.AllowHeaders, ", ")
	p.expose = strings.Join(expose, ", ")

	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// origin returns the Access-Control-Allow-Origin value, or "" when denied.
func (p corsPolicy) origin(origin string) string {
	if p.allowAll {
		return "*"
	}
	if o, ok := p.allowed[strings.ToLower(origin)]; ok {
		return o
	}
	// With credentials and a wildcard config every origin is echoed.
	if p.credentials && len(p.allowed) == 0 {
		return origin
	}
	return ""
}

func (p corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allowOrigin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allowOrigin != "" {
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", p.methods)
		if p.headers != "" {
			h.Set("Access-Control-Allow-Headers", p.headers)
		} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
			h.Set("Access-Control-Allow-Headers", rh)
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS returns a middleware answering preflight requests and decorating
// cross-origin responses. Origins match case-insensitively.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !p.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := p.origin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, allowOrigin)
				return
			}

			if !p.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Expose-Headers", p.expose)
				if p.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
