package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/dispatch"
	"github.com/wudi/urlforward/internal/logging"
	"github.com/wudi/urlforward/internal/metrics"
	"github.com/wudi/urlforward/internal/middleware"
	"github.com/wudi/urlforward/internal/router"
	"github.com/wudi/urlforward/internal/routing"
	"github.com/wudi/urlforward/internal/tracing"
)

// Server hosts the forwarding endpoint and the admin API.
type Server struct {
	config *config.Config

	store      *routing.Store
	reloader   *routing.Reloader
	dispatcher *dispatch.Dispatcher
	router     *router.Router
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	watcher    *config.Watcher

	httpServer    *http.Server
	adminServer   *http.Server
	reloadLimiter *rate.Limiter
	startTime     time.Time
	shutdownOnce  sync.Once
}

// Option customizes a Server.
type Option func(*serverOptions)

type serverOptions struct {
	transport dispatch.Transport
	loader    routing.RouteLoader
	tracer    *tracing.Tracer
}

// WithTransport replaces the outbound HTTP transport.
func WithTransport(t dispatch.Transport) Option {
	return func(o *serverOptions) { o.transport = t }
}

// WithRouteLoader replaces the route file loader.
func WithRouteLoader(l routing.RouteLoader) Option {
	return func(o *serverOptions) { o.loader = l }
}

// WithTracer replaces the tracer built from the tracing section.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *serverOptions) { o.tracer = t }
}

// New builds a Server from cfg and loads the routing table. A table that
// fails to load is fatal here; later reload failures keep the active table.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		config:    cfg,
		store:     routing.NewStore(),
		metrics:   metrics.NewCollector(),
		startTime: time.Now(),
	}

	s.tracer = o.tracer
	if s.tracer == nil {
		tracer, err := tracing.New(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		s.tracer = tracer
	}

	transport := o.transport
	if transport == nil {
		ht, err := dispatch.NewHTTPTransport(cfg.Forwarding)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize transport: %w", err)
		}
		transport = ht
	}
	s.dispatcher = dispatch.New(transport, dispatch.Options{
		Timeout:   cfg.Forwarding.Timeout,
		Breaker:   cfg.Forwarding.CircuitBreaker,
		UserAgent: cfg.Forwarding.UserAgent,
		Tracer:    s.tracer,
		Metrics:   s.metrics,
	})

	loader := o.loader
	if loader == nil {
		loader = config.NewLoader()
	}
	s.reloader = routing.NewReloader(s.store, loader, cfg.Routes.Files, cfg.Routes.Defaults)
	s.reloader.OnReload(s.afterReload)

	if res := s.reloader.Reload(); !res.Success {
		return nil, fmt.Errorf("failed to load routes: %s", res.Error)
	}

	s.router = router.New(routing.NewSource(s.store, s.reloader, cfg.Debug), s.dispatcher, router.Options{
		Metrics:      s.metrics,
		Debug:        cfg.Debug,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	if cfg.Routes.Watch && !cfg.Debug {
		w, err := config.NewWatcher(s.store.Load().Files)
		if err != nil {
			return nil, fmt.Errorf("failed to watch route files: %w", err)
		}
		if cfg.Routes.Debounce > 0 {
			w.SetDebounce(cfg.Routes.Debounce)
		}
		w.OnChange(func() { s.Reload() })
		s.watcher = w
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Admin.Enabled {
		s.reloadLimiter = rate.NewLimiter(rate.Limit(cfg.Admin.ReloadRate), cfg.Admin.ReloadBurst)
		s.adminServer = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      s.AdminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// afterReload runs after every reload attempt.
func (s *Server) afterReload(result routing.ReloadResult, table *routing.Table) {
	s.metrics.RecordReload(result.Success, result.Routes)
	if !result.Success {
		return
	}

	keys := make(map[string]bool)
	for _, route := range table.Routes() {
		for _, fwd := range route.Forwards {
			keys[dispatch.TargetOf(fwd).BreakerKey()] = true
		}
	}
	s.dispatcher.RetainBreakers(func(key string) bool { return keys[key] })

	if s.watcher != nil {
		if err := s.watcher.SetFiles(table.Files); err != nil {
			logging.Warn("failed to update watched route files", zap.Error(err))
		}
	}
}

// Handler returns the forwarding endpoint with its middleware chain.
func (s *Server) Handler() http.Handler {
	return middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(logging.Global()),
		middleware.Recovery(s.config.Debug),
	).AppendIf(s.tracer.IsEnabled(), s.tracer.Middleware()).Then(s.router)
}

// Reload reloads the routing table from disk.
func (s *Server) Reload() routing.ReloadResult {
	return s.reloader.Reload()
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down.
// SIGHUP reloads the routing table.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	mainLn, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	var adminLn net.Listener
	if s.adminServer != nil {
		adminLn, err = net.Listen("tcp", s.adminServer.Addr)
		if err != nil {
			mainLn.Close()
			return fmt.Errorf("listen admin %s: %w", s.adminServer.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Starting forwarding server",
			zap.String("address", mainLn.Addr().String()),
			zap.Int("routes", s.store.Load().Len()),
			zap.Bool("debug", s.config.Debug),
		)
		return serve(s.httpServer, mainLn)
	})

	if adminLn != nil {
		g.Go(func() error {
			logging.Info("Starting admin server", zap.String("address", adminLn.Addr().String()))
			return serve(s.adminServer, adminLn)
		})
	}

	if s.watcher != nil {
		s.watcher.Start()
	}

	g.Go(func() error {
		for {
			select {
			case <-hup:
				result := s.Reload()
				if result.Success {
					logging.Info("Routes reloaded", zap.Int("changes", len(result.Changes)))
				} else {
					logging.Error("Routes reload failed", zap.String("error", result.Error))
				}
			case <-gctx.Done():
				logging.Info("Shutting down gracefully...")
				return s.Shutdown(s.config.Shutdown.Timeout)
			}
		}
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits up to timeout for in-flight
// ones. It is safe to call more than once.
func (s *Server) Shutdown(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.adminServer != nil {
			if aerr := s.adminServer.Shutdown(ctx); aerr != nil {
				logging.Error("Admin server shutdown error", zap.Error(aerr))
			}
		}
		if herr := s.httpServer.Shutdown(ctx); herr != nil {
			logging.Error("Server shutdown error", zap.Error(herr))
			err = herr
		}
		if terr := s.tracer.Close(ctx); terr != nil {
			logging.Error("Tracer shutdown error", zap.Error(terr))
		}
		logging.Info("Server shutdown complete")
	})
	return err
}

// Store returns the active routing table store.
func (s *Server) Store() *routing.Store {
	return s.store
}

// Metrics returns the metrics collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}
