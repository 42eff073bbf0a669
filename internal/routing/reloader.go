package routing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/errors"
	"github.com/wudi/urlforward/internal/logging"
)

// RouteLoader reads raw route records from disk.
type RouteLoader interface {
	LoadRoutes(patterns []string, defaultsPath string) (*config.RouteSet, error)
}

// ReloadResult represents the outcome of a routing table reload.
type ReloadResult struct {
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Routes    int           `json:"routes"`
	Error     string        `json:"error,omitempty"`
	Changes   []string      `json:"changes,omitempty"`
}

const maxReloadHistory = 50

// Reloader loads and resolves the route files and swaps the result into a
// Store. A failed reload leaves the active table untouched.
type Reloader struct {
	loader   RouteLoader
	patterns []string
	defaults string
	store    *Store

	mu        sync.Mutex // serializes reloads
	history   []ReloadResult
	observers []func(ReloadResult, *Table)
}

// NewReloader creates a reloader for the given route files.
func NewReloader(store *Store, loader RouteLoader, patterns []string, defaultsPath string) *Reloader {
	return &Reloader{
		loader:   loader,
		patterns: patterns,
		defaults: defaultsPath,
		store:    store,
	}
}

// OnReload registers fn to run after every reload attempt. t is the newly
// active table, nil when the attempt failed. fn runs while the reloader is
// locked and must not call back into it.
func (r *Reloader) OnReload(fn func(result ReloadResult, t *Table)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Reload rebuilds the routing table from disk.
func (r *Reloader) Reload() ReloadResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := ReloadResult{Timestamp: start}

	table, err := r.build()
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		logging.Error("routing table reload failed, keeping active table", zap.Error(err))
	} else {
		old := r.store.Swap(table)
		result.Success = true
		result.Routes = table.Len()
		result.Changes = diffTables(old, table)
		logging.Info("routing table loaded",
			zap.Int("routes", table.Len()),
			zap.Strings("files", table.Files),
			zap.Int("changes", len(result.Changes)),
		)
	}

	r.history = append(r.history, result)
	if len(r.history) > maxReloadHistory {
		r.history = r.history[len(r.history)-maxReloadHistory:]
	}
	for _, fn := range r.observers {
		fn(result, table)
	}
	return result
}

func (r *Reloader) build() (*Table, error) {
	set, err := r.loader.LoadRoutes(r.patterns, r.defaults)
	if err != nil {
		return nil, err
	}
	table, err := Resolve(set.Routes, set.Template)
	if err != nil {
		return nil, err
	}
	table.Files = set.Files
	table.LoadedAt = time.Now()
	return table, nil
}

// History returns past reload results, oldest first.
func (r *Reloader) History() []ReloadResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReloadResult, len(r.history))
	copy(out, r.history)
	return out
}

// Source hands out routing table snapshots to request handlers.
type Source struct {
	store       *Store
	reloader    *Reloader
	eachRequest bool
	group       singleflight.Group
}

// NewSource creates a snapshot source. With reloadEachRequest every Snapshot
// reloads the files first; concurrent reloads are collapsed into one.
func NewSource(store *Store, reloader *Reloader, reloadEachRequest bool) *Source {
	return &Source{
		store:       store,
		reloader:    reloader,
		eachRequest: reloadEachRequest,
	}
}

// Snapshot returns the table to use for one request. A failed per-request
// reload is logged and the previous table is served.
func (s *Source) Snapshot(ctx context.Context) (*Table, error) {
	if s.eachRequest && s.reloader != nil {
		ch := s.group.DoChan("reload", func() (any, error) {
			return s.reloader.Reload(), nil
		})
		select {
		case res := <-ch:
			if rr, ok := res.Val.(ReloadResult); ok && !rr.Success {
				logging.Warn("per-request reload failed, serving previous table",
					zap.String("error", rr.Error))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t := s.store.Load()
	if t == nil {
		return nil, errors.ErrInternalServer.WithDetails("no routing table loaded")
	}
	return t, nil
}
