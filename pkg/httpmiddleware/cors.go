package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests. Empty
	// or a single "*" allows all origins.
	AllowOrigins []string
	// AllowMethods defaults to "GET, POST, PUT, PATCH, DELETE, OPTIONS".
	AllowMethods []string
	// AllowHeaders, when empty, echoes the preflight's requested headers.
	AllowHeaders []string
	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string
	// AllowCredentials must not be combined with a wildcard origin; the
	// middleware echoes the specific origin instead.
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds; 0 omits the header.
	MaxAge int
}

// CORS handles cross-origin request headers and preflight requests.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(o)] = o
	}
	if cfg.AllowCredentials {
		// Wildcard + credentials is forbidden; echo the specific origin.
		allowAll = false
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	if allowMethods == "" {
		allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := ""
			switch {
			case allowAll:
				allowOrigin = "*"
			default:
				allowOrigin = allowed[strings.ToLower(origin)]
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Origin")
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")

				if allowOrigin != "" {
					w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
					w.Header().Set("Access-Control-Allow-Methods", allowMethods)
					switch {
					case allowHeaders != "":
						w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
					default:
						if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
							w.Header().Set("Access-Control-Allow-Headers", rh)
						}
					}
					if cfg.AllowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					if cfg.MaxAge > 0 {
						w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
