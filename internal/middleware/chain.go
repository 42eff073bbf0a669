package middleware

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware list. The first entry sees the request
// first.
type Chain []Middleware

// NewChain creates a chain from middlewares.
func NewChain(middlewares ...Middleware) Chain {
	return Chain(nil).Append(middlewares...)
}

// Append returns a new chain with middlewares added last. c is unchanged.
func (c Chain) Append(middlewares ...Middleware) Chain {
	out := make(Chain, 0, len(c)+len(middlewares))
	out = append(out, c...)
	return append(out, middlewares...)
}

// AppendIf appends m only when cond holds.
func (c Chain) AppendIf(cond bool, m Middleware) Chain {
	if !cond {
		return c
	}
	return c.Append(m)
}

// Then wraps h in every middleware of the chain.
func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}
