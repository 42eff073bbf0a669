package middleware

import (
	"fmt"
	"html"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/errors"
	"github.com/wudi/urlforward/internal/logging"
)

// RecoveryConfig configures the recovery middleware
type RecoveryConfig struct {
	// Debug writes the failure and stack trace into the response body.
	// Production deployments must leave it off.
	Debug bool
	// LogFunc is called when a panic occurs
	LogFunc func(r *http.Request, err any, stack []byte)
}

func defaultLogFunc(r *http.Request, err any, stack []byte) {
	logging.Error("Panic recovered",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Any("error", err),
		zap.ByteString("stack", stack),
	)
}

// Recovery creates a panic recovery middleware
func Recovery(debugMode bool) Middleware {
	return RecoveryWithConfig(RecoveryConfig{Debug: debugMode})
}

// RecoveryWithConfig creates a recovery middleware with custom config
func RecoveryWithConfig(cfg RecoveryConfig) Middleware {
	if cfg.LogFunc == nil {
		cfg.LogFunc = defaultLogFunc
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}
				stack := debug.Stack()
				cfg.LogFunc(r, err, stack)
				WriteInternalError(w, r, fmt.Sprintf("panic: %v", err), stack, cfg.Debug)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteInternalError answers 500. In debug mode the escaped failure and
// stack are written inside <pre>; otherwise the body is empty.
func WriteInternalError(w http.ResponseWriter, r *http.Request, failure string, stack []byte, debugMode bool) {
	if info := InfoFromContext(r.Context()); info != nil {
		info.Stage = "error"
	}
	if !debugMode {
		errors.ErrInternalServer.WriteText(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "<pre>%s\n\n%s</pre>", html.EscapeString(failure), html.EscapeString(string(stack)))
}
