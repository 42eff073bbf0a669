package middleware

import (
	"context"
	"net/http"
)

// RequestInfo collects per-request facts for the access log. Inner handlers
// fill in what they learn; the access log reads it after the response.
type RequestInfo struct {
	RequestID string
	Route     string
	Stage     string
	Forwards  int
}

type requestInfoKey struct{}

// WithRequestInfo returns ctx carrying info.
func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// InfoFromContext returns the request info, or nil when none is attached.
func InfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// ensureInfo attaches a RequestInfo to r when it has none.
func ensureInfo(r *http.Request) (*http.Request, *RequestInfo) {
	if info := InfoFromContext(r.Context()); info != nil {
		return r, info
	}
	info := &RequestInfo{}
	return r.WithContext(WithRequestInfo(r.Context(), info)), info
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if info := InfoFromContext(ctx); info != nil {
		return info.RequestID
	}
	return ""
}
