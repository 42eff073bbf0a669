package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/logging"
	"github.com/wudi/urlforward/internal/tracing"
)

// Request is one outbound exchange.
type Request struct {
	Method          string
	URL             string
	Header          http.Header
	Body            []byte // nil when the params travel in the query string
	FollowRedirects bool
}

// Transport performs outbound exchanges. Fetch returns the remote status of
// any completed exchange; only failures to obtain a status are errors.
type Transport interface {
	Fetch(ctx context.Context, req *Request) (int, error)
}

// maxDrain bounds how much of a response body is read to reuse a connection.
const maxDrain = 64 << 10

// HTTPTransport is the net/http Transport. It retries exchanges that fail
// without a status, with exponential backoff, when retries are configured.
type HTTPTransport struct {
	follow       *http.Client
	noFollow     *http.Client
	retries      int
	retryBackoff time.Duration
}

// NewHTTPTransport creates an HTTPTransport from the forwarding settings.
func NewHTTPTransport(cfg config.ForwardingConfig) (*HTTPTransport, error) {
	rt, err := newRoundTripper(cfg.Transport)
	if err != nil {
		return nil, err
	}

	maxRedirects := cfg.Transport.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	return &HTTPTransport{
		follow: &http.Client{
			Transport: rt,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		noFollow: &http.Client{
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retries:      cfg.Retries,
		retryBackoff: cfg.RetryBackoff,
	}, nil
}

func newRoundTripper(cfg config.TransportConfig) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("ca_file %s: no certificates found", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
	}, nil
}

// Fetch performs req and returns the remote status.
func (t *HTTPTransport) Fetch(ctx context.Context, req *Request) (int, error) {
	client := t.follow
	if !req.FollowRedirects {
		client = t.noFollow
	}

	var status int
	attempt := 0
	op := func() error {
		attempt++
		httpReq, err := t.newRequest(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if attempt <= t.retries {
				logging.Debug("forward attempt failed, retrying",
					zap.String("url", req.URL),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
			return err
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		resp.Body.Close()
		status = resp.StatusCode
		return nil
	}

	if t.retries <= 0 {
		if err := op(); err != nil {
			return 0, unwrapPermanent(err)
		}
		return status, nil
	}

	bo := backoff.NewExponentialBackOff()
	if t.retryBackoff > 0 {
		bo.InitialInterval = t.retryBackoff
	}
	bo.MaxElapsedTime = 0 // bounded by retries and ctx
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return 0, err
	}
	return status, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	tracing.Inject(ctx, httpReq.Header)
	return httpReq, nil
}

func unwrapPermanent(err error) error {
	if p, ok := err.(*backoff.PermanentError); ok {
		return p.Err
	}
	return err
}
