package routing

import (
	"reflect"
	"sort"
	"sync/atomic"
	"time"

	"github.com/wudi/urlforward/internal/config"
)

// Table maps request paths to resolved routes. It is never modified after
// Resolve returns it.
type Table struct {
	routes   map[string]*Route
	paths    []string // sorted
	template *config.RouteInput

	// Files lists the files the table was loaded from, when known.
	Files    []string
	LoadedAt time.Time
}

// Lookup returns the route for path.
func (t *Table) Lookup(path string) (*Route, bool) {
	r, ok := t.routes[path]
	return r, ok
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Routes returns the routes ordered by path.
func (t *Table) Routes() []*Route {
	out := make([]*Route, 0, len(t.paths))
	for _, p := range t.paths {
		out = append(out, t.routes[p])
	}
	return out
}

// Describe returns the display form of every route, ordered by path.
func (t *Table) Describe() []RouteInfo {
	out := make([]RouteInfo, 0, len(t.paths))
	for _, r := range t.Routes() {
		out = append(out, r.Describe())
	}
	return out
}

// Store holds the active table. Readers take a snapshot with Load and keep
// using it for the rest of the request.
type Store struct {
	current atomic.Pointer[Table]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the active table, nil before the first successful load.
func (s *Store) Load() *Table {
	return s.current.Load()
}

// Swap activates t and returns the previous table.
func (s *Store) Swap(t *Table) *Table {
	return s.current.Swap(t)
}

// diffTables lists route changes between two tables.
func diffTables(oldT, newT *Table) []string {
	var changes []string
	if oldT == nil {
		for _, p := range newT.paths {
			changes = append(changes, "route added: "+p)
		}
		return changes
	}

	for _, p := range newT.paths {
		oldR, ok := oldT.routes[p]
		if !ok {
			changes = append(changes, "route added: "+p)
			continue
		}
		if !reflect.DeepEqual(oldR.view.Explicit(), newT.routes[p].view.Explicit()) {
			changes = append(changes, "route changed: "+p)
		}
	}
	for _, p := range oldT.paths {
		if _, ok := newT.routes[p]; !ok {
			changes = append(changes, "route removed: "+p)
		}
	}
	if !reflect.DeepEqual(oldT.template, newT.template) {
		changes = append(changes, "template changed")
	}

	sort.Strings(changes)
	return changes
}
