package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

func init() {
	uuid.EnableRandPool()
}

// maxInboundID bounds caller supplied request ids.
const maxInboundID = 128

// RequestIDConfig configures the request ID middleware.
type RequestIDConfig struct {
	Header    string        // default X-Request-ID
	Generator func() string // default random UUID
	// TrustHeader reuses a caller supplied id when it is short and printable.
	TrustHeader bool
}

// RequestID tags every request with an id, reusing the caller's X-Request-ID
// when acceptable. The id is echoed in the response header.
func RequestID() Middleware {
	return RequestIDWithConfig(RequestIDConfig{TrustHeader: true})
}

// RequestIDWithConfig creates a request ID middleware with custom config.
func RequestIDWithConfig(cfg RequestIDConfig) Middleware {
	if cfg.Header == "" {
		cfg.Header = "X-Request-ID"
	}
	if cfg.Generator == nil {
		cfg.Generator = func() string { return uuid.New().String() }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cfg.TrustHeader {
				if in := r.Header.Get(cfg.Header); acceptableID(in) {
					id = in
				}
			}
			if id == "" {
				id = cfg.Generator()
			}
			w.Header().Set(cfg.Header, id)

			r, info := ensureInfo(r)
			info.RequestID = id
			next.ServeHTTP(w, r)
		})
	}
}

func acceptableID(id string) bool {
	if id == "" || len(id) > maxInboundID {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
