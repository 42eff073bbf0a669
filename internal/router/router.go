package router

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/dispatch"
	"github.com/wudi/urlforward/internal/errors"
	"github.com/wudi/urlforward/internal/ipfilter"
	"github.com/wudi/urlforward/internal/logging"
	"github.com/wudi/urlforward/internal/metrics"
	"github.com/wudi/urlforward/internal/middleware"
	"github.com/wudi/urlforward/internal/paramforward"
	"github.com/wudi/urlforward/internal/routing"
)

// Stage is a step of request handling. A Result reports the stage at which
// handling ended.
type Stage string

const (
	StageStart        Stage = "start"
	StageRouteLookup  Stage = "route_lookup"
	StageMethodCheck  Stage = "method_check"
	StageAddressCheck Stage = "address_check"
	StageForwarding   Stage = "forwarding"
	StageDone         Stage = "done"
)

// Forwarder sends one forward. *dispatch.Dispatcher implements it.
type Forwarder interface {
	Dispatch(ctx context.Context, target dispatch.Target, params map[string]string) (int, error)
}

// Request is an inbound call reduced to what routing needs.
type Request struct {
	Path       string
	Method     string
	RemoteAddr string // caller host, without port
	Params     map[string]string
}

// Result is the aggregate outcome of a request.
type Result struct {
	Status   int
	Body     string
	Stage    Stage
	Route    string // empty when no route matched
	Forwards int    // forwards attempted
}

// Options configures a Router.
type Options struct {
	Metrics      *metrics.Collector
	Debug        bool  // failure details in 500 responses
	MaxBodyBytes int64 // form body limit, 0 for none
}

// Router validates inbound calls against the routing table and replays
// them to every forward of the matched route.
type Router struct {
	source    *routing.Source
	forwarder Forwarder
	metrics   *metrics.Collector
	debug     bool
	maxBody   int64
}

// New creates a Router reading tables from source.
func New(source *routing.Source, forwarder Forwarder, opts Options) *Router {
	return &Router{
		source:    source,
		forwarder: forwarder,
		metrics:   opts.Metrics,
		debug:     opts.Debug,
		maxBody:   opts.MaxBodyBytes,
	}
}

// Handle runs req through lookup, method and address checks, then every
// forward of the route in declared order. The status is 200 unless a
// forward fails; the last failing status wins. An error is returned only
// when no routing table is available.
func (rt *Router) Handle(ctx context.Context, req *Request) (*Result, error) {
	table, err := rt.source.Snapshot(ctx)
	if err != nil {
		return &Result{Status: http.StatusInternalServerError, Stage: StageStart}, err
	}

	route, ok := table.Lookup(req.Path)
	if !ok {
		return &Result{Status: errors.ErrRouteNotFound.Code, Stage: StageRouteLookup}, nil
	}
	res := &Result{Route: route.Path}

	if !route.AllowsMethod(req.Method) {
		res.Status, res.Stage = errors.ErrMethodNotAllowed.Code, StageMethodCheck
		return res, nil
	}
	if !route.AllowsAddress(req.RemoteAddr) {
		res.Status, res.Stage = errors.ErrAddressNotAllowed.Code, StageAddressCheck
		return res, nil
	}

	res.Status = http.StatusOK
	var body strings.Builder
	for _, fwd := range route.Forwards {
		code := rt.forward(ctx, fwd, req.Params)
		res.Forwards++
		if code == http.StatusOK {
			fmt.Fprintf(&body, "Send at %s\n", fwd.URL())
			continue
		}
		fmt.Fprintf(&body, "Houps: %d for %s\n", code, fwd.URL())
		res.Status = code
	}
	res.Body = body.String()
	res.Stage = StageDone
	return res, nil
}

// forward sends params through one forward and returns the status it
// contributes. Transport failures are logged and mapped to their status.
func (rt *Router) forward(ctx context.Context, fwd *routing.Forward, inbound map[string]string) int {
	rules := fwd.Rules()
	params := rules.Apply(inbound)
	if dropped := rules.Dropped(inbound); len(dropped) > 0 {
		sort.Strings(dropped)
		logging.Debug("parameters filtered",
			zap.String("forward", fwd.Name),
			zap.Strings("dropped", dropped),
		)
	}

	code, err := rt.forwarder.Dispatch(ctx, dispatch.TargetOf(fwd), params)
	if err == nil {
		return code
	}

	if terr, ok := errors.AsTransportError(err); ok {
		code = terr.Status
	}
	if code == 0 {
		code = errors.ErrBadGateway.Code
	}
	logging.Warn("forward failed",
		zap.String("forward", fwd.Name),
		zap.String("url", fwd.URL()),
		zap.Int("status", code),
		zap.Error(err),
	)
	return code
}

// ServeHTTP adapts Handle to net/http. Parameters are the query string and
// form body, first value per key; the caller is the connection peer.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	info := middleware.InfoFromContext(r.Context())

	if rt.maxBody > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxBody)
	}
	if err := r.ParseForm(); err != nil {
		logging.Debug("invalid form body", zap.String("path", r.URL.Path), zap.Error(err))
		errors.New(http.StatusBadRequest, "invalid form body").WriteText(w)
		rt.metrics.RecordRequest("", string(StageStart), http.StatusBadRequest, time.Since(start))
		return
	}

	res, err := rt.Handle(r.Context(), &Request{
		Path:       r.URL.Path,
		Method:     r.Method,
		RemoteAddr: ipfilter.RemoteHost(r),
		Params:     paramforward.FromValues(r.Form),
	})
	if info != nil {
		info.Route = res.Route
		info.Stage = string(res.Stage)
		info.Forwards = res.Forwards
	}
	rt.metrics.RecordRequest(res.Route, string(res.Stage), res.Status, time.Since(start))

	if err != nil {
		he, ok := errors.AsHTTPError(err)
		if !ok {
			he = errors.Wrap(err, res.Status, "request failed")
		}
		he = he.WithRequestID(middleware.RequestIDFromContext(r.Context()))
		logging.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", he.RequestID),
			zap.Int("status", he.Code),
			zap.Error(he),
		)
		failure := he.Error()
		if he.Details != "" {
			failure += ": " + he.Details
		}
		if he.RequestID != "" {
			failure += " (request " + he.RequestID + ")"
		}
		middleware.WriteInternalError(w, r, failure, nil, rt.debug)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(res.Status)
	if res.Body != "" {
		fmt.Fprint(w, res.Body)
	}
}
