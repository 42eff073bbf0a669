package routing

import (
	"sort"
	"strings"
	"time"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/errors"
	"github.com/wudi/urlforward/internal/ipfilter"
	"github.com/wudi/urlforward/internal/paramforward"
)

// Resolve builds a routing table from raw route records and the template
// record. Every route reads through to the template and every forward reads
// through to the template's first forward. The inputs are not modified and
// must not be modified while the table is in use.
func Resolve(routes []config.RouteInput, template *config.RouteInput) (*Table, error) {
	if template == nil {
		return nil, errors.NewConfigError(config.TemplatePath, "template record missing")
	}
	if len(template.Forwards) == 0 {
		return nil, errors.NewConfigError(config.TemplatePath, "template declares no forward")
	}
	fwdTemplate := &template.Forwards[0]

	t := &Table{
		routes:   make(map[string]*Route, len(routes)),
		template: template,
	}
	for i := range routes {
		raw := &routes[i]
		if raw.URL == "" {
			return nil, errors.NewConfigError("", "route %d: missing url", i)
		}
		if _, dup := t.routes[raw.URL]; dup {
			return nil, errors.NewConfigError(raw.URL, "duplicate route")
		}
		route, err := resolveRoute(raw, template, fwdTemplate)
		if err != nil {
			return nil, err
		}
		t.routes[raw.URL] = route
		t.paths = append(t.paths, raw.URL)
	}
	sort.Strings(t.paths)
	return t, nil
}

func resolveRoute(raw, template *config.RouteInput, fwdTemplate *config.ForwardInput) (*Route, error) {
	r := &Route{
		Path: raw.URL,
		view: NewLayered(raw, template),
	}

	methods, ok := Lookup(r.view, routeMethods)
	if !ok || len(methods) == 0 {
		return nil, errors.NewConfigError(raw.URL, "no methods")
	}
	for _, m := range methods {
		if strings.TrimSpace(m) == "" {
			return nil, errors.NewConfigError(raw.URL, "empty method")
		}
	}

	if addrs, ok := Lookup(r.view, routeRemoteAddr); ok {
		allow, err := ipfilter.New(addrs)
		if err != nil {
			return nil, errors.WrapConfigError(err, raw.URL, "remote_addr")
		}
		r.allow = allow
	}

	// Forwards are never inherited from the template.
	if len(raw.Forwards) == 0 {
		return nil, errors.NewConfigError(raw.URL, "no forwards")
	}
	r.Forwards = make([]*Forward, 0, len(raw.Forwards))
	for i := range raw.Forwards {
		f, err := resolveForward(raw.URL, i, &raw.Forwards[i], fwdTemplate)
		if err != nil {
			return nil, err
		}
		r.Forwards = append(r.Forwards, f)
	}
	return r, nil
}

func resolveForward(path string, index int, raw, fwdTemplate *config.ForwardInput) (*Forward, error) {
	f := &Forward{
		Name:  forwardName(path, index),
		Index: index,
		view:  NewLayered(raw, fwdTemplate),
	}

	if u, ok := Lookup(f.view, fwdURL); !ok || strings.TrimSpace(u) == "" {
		return nil, errors.NewConfigError(f.Name, "forward has no url")
	}

	login := LookupOr(f.view, fwdLogin, "")
	password := LookupOr(f.view, fwdPassword, "")
	if (login == "") != (password == "") {
		return nil, errors.NewConfigError(f.Name, "login and password must be set together")
	}

	if timeout := LookupOr(f.view, fwdTimeout, time.Duration(0)); timeout < 0 {
		return nil, errors.NewConfigError(f.Name, "negative timeout %s", timeout)
	}

	only, _ := Lookup(f.view, fwdOnly)
	f.rules = paramforward.New(
		LookupOr(f.view, fwdRemove, nil),
		only,
		LookupOr(f.view, fwdDefault, nil),
		LookupOr(f.view, fwdSet, nil),
	)
	return f, nil
}
