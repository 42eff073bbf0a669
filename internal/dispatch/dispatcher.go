package dispatch

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/errors"
	"github.com/wudi/urlforward/internal/metrics"
	"github.com/wudi/urlforward/internal/routing"
	"github.com/wudi/urlforward/internal/tracing"
)

// DefaultTimeout bounds a forward that has no timeout of its own.
const DefaultTimeout = 10 * time.Second

// Target is the resolved destination of one forward.
type Target struct {
	Name            string // metrics, span and breaker label
	URL             string
	Method          string
	Headers         map[string]string
	FollowRedirects bool
	Login           string
	Password        string
	Timeout         time.Duration // zero uses the dispatcher default
}

// BreakerKey identifies the destination a breaker guards. Forwards that keep
// their name but change method or URL across a reload get a fresh breaker.
func (t Target) BreakerKey() string {
	method := strings.ToUpper(t.Method)
	if method == "" {
		method = http.MethodGet
	}
	return t.Name + " " + method + " " + t.URL
}

// TargetOf returns the destination of a resolved forward.
func TargetOf(fwd *routing.Forward) Target {
	login, password, _ := fwd.Credentials()
	return Target{
		Name:            fwd.Name,
		URL:             fwd.URL(),
		Method:          fwd.Method(),
		Headers:         fwd.Headers(),
		FollowRedirects: fwd.FollowRedirects(),
		Login:           login,
		Password:        password,
		Timeout:         fwd.Timeout(),
	}
}

// Options configures a Dispatcher.
type Options struct {
	Timeout   time.Duration
	Breaker   config.CircuitBreakerConfig
	UserAgent string
	Tracer    *tracing.Tracer
	Metrics   *metrics.Collector
}

// Dispatcher turns a target and its parameters into one outbound exchange.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	userAgent string
	tracer    *tracing.Tracer
	metrics   *metrics.Collector
	breakers  *breakers // nil when disabled
}

// New creates a Dispatcher sending through transport.
func New(transport Transport, opts Options) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if opts.Breaker.Enabled {
		d.breakers = newBreakers(opts.Breaker, func(name string, to gobreaker.State) {
			d.metrics.SetBreakerState(name, int(to))
		})
	}
	return d
}

// Dispatch sends params to target and returns the remote status. Any
// completed exchange is a success whatever its status; failures to obtain a
// status return a *errors.TransportError carrying the status that stands in
// for the missing one.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, params map[string]string) (int, error) {
	req := BuildRequest(target, params)
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := d.tracer.StartForward(ctx, target.Name, req.Method, target.URL)
	start := time.Now()

	status, err := d.fetch(ctx, target, req)
	if err != nil {
		terr := &errors.TransportError{
			URL:    target.URL,
			Status: failureStatus(ctx, err),
			Err:    err,
		}
		tracing.EndForward(span, 0, terr)
		d.metrics.RecordForward(target.Name, terr.Status, true, time.Since(start))
		return terr.Status, terr
	}

	tracing.EndForward(span, status, nil)
	d.metrics.RecordForward(target.Name, status, false, time.Since(start))
	return status, nil
}

func (d *Dispatcher) fetch(ctx context.Context, target Target, req *Request) (int, error) {
	if d.breakers == nil {
		return d.transport.Fetch(ctx, req)
	}
	return d.breakers.get(target.BreakerKey(), target.Name).Execute(func() (int, error) {
		return d.transport.Fetch(ctx, req)
	})
}

// BreakerState returns the breaker state of target, "closed" when breakers
// are disabled.
func (d *Dispatcher) BreakerState(target Target) string {
	if d.breakers == nil {
		return gobreaker.StateClosed.String()
	}
	return d.breakers.state(target.BreakerKey()).String()
}

// BreakerStates returns the state of every breaker created so far, by
// forward name.
func (d *Dispatcher) BreakerStates() map[string]string {
	if d.breakers == nil {
		return map[string]string{}
	}
	return d.breakers.states()
}

// RetainBreakers drops breakers whose BreakerKey keep rejects. After a
// reload it discards breakers of removed or retargeted forwards.
func (d *Dispatcher) RetainBreakers(keep func(key string) bool) {
	if d.breakers != nil {
		d.breakers.retain(keep)
	}
}

// failureStatus maps a failed exchange to the status it contributes.
func failureStatus(ctx context.Context, err error) int {
	switch {
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// BuildRequest encodes params for target. POST and PUT carry them as a form
// body; other verbs append them to the query string.
func BuildRequest(target Target, params map[string]string) *Request {
	method := strings.ToUpper(target.Method)
	if method == "" {
		method = http.MethodGet
	}

	req := &Request{
		Method:          method,
		URL:             target.URL,
		Header:          make(http.Header, len(target.Headers)+2),
		FollowRedirects: target.FollowRedirects,
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	encoded := EncodeParams(params)
	if method == http.MethodPost || method == http.MethodPut {
		req.Body = []byte(encoded)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req.URL = AppendQuery(target.URL, encoded)
	}

	if target.Login != "" && target.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(target.Login + ":" + target.Password))
		req.Header.Set("Authorization", "Basic "+token)
	}
	return req
}

// EncodeParams form-encodes params with keys in sorted order.
func EncodeParams(params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

// AppendQuery appends an encoded query to rawURL, keeping any query it
// already has. An empty query leaves rawURL unchanged.
func AppendQuery(rawURL, encoded string) string {
	if encoded == "" {
		return rawURL
	}
	frag := ""
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL, frag = rawURL[:i], rawURL[i:]
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
		if strings.HasSuffix(rawURL, "?") || strings.HasSuffix(rawURL, "&") {
			sep = ""
		}
	}
	return rawURL + sep + encoded + frag
}
