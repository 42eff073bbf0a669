package routing

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/wudi/urlforward/internal/config"
	"github.com/wudi/urlforward/internal/ipfilter"
	"github.com/wudi/urlforward/internal/paramforward"
)

// Route is a resolved route. Field reads go through the route's layered view;
// the allow list and forward rules are compiled once when the table is built.
type Route struct {
	Path     string
	Forwards []*Forward

	view  Layered[config.RouteInput]
	allow *ipfilter.AllowList
}

// Methods returns the accepted verbs.
func (r *Route) Methods() []string {
	methods, _ := Lookup(r.view, routeMethods)
	return methods
}

// AllowsMethod reports whether method is accepted. Verbs are case-sensitive,
// as HTTP methods are.
func (r *Route) AllowsMethod(method string) bool {
	return slices.Contains(r.Methods(), method)
}

// AllowsAddress reports whether addr may call the route.
func (r *Route) AllowsAddress(addr string) bool {
	return r.allow.Allows(addr)
}


// Forward is a resolved outbound request declaration.
type Forward struct {
	// Name identifies the forward in logs, metrics and breakers: "<path>#<index>".
	Name  string
	Index int

	view  Layered[config.ForwardInput]
	rules *paramforward.Rules
}

func forwardName(path string, index int) string {
	return fmt.Sprintf("%s#%d", path, index)
}

// URL returns the destination.
func (f *Forward) URL() string {
	u, _ := Lookup(f.view, fwdURL)
	return u
}

// Method returns the outbound verb, GET when unset.
func (f *Forward) Method() string {
	m := LookupOr(f.view, fwdMethod, http.MethodGet)
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

// Headers returns the configured headers. The map is shared; do not modify.
func (f *Forward) Headers() map[string]string {
	return LookupOr(f.view, fwdHeaders, nil)
}

// FollowRedirects defaults to true.
func (f *Forward) FollowRedirects() bool {
	return LookupOr(f.view, fwdFollowRedirects, true)
}

// Credentials returns the basic auth pair. ok is false unless both parts are
// non-empty.
func (f *Forward) Credentials() (login, password string, ok bool) {
	login = LookupOr(f.view, fwdLogin, "")
	password = LookupOr(f.view, fwdPassword, "")
	return login, password, login != "" && password != ""
}

// Timeout returns the per-forward timeout, zero when unset.
func (f *Forward) Timeout() time.Duration {
	return LookupOr(f.view, fwdTimeout, 0)
}

// Rules returns the parameter transformation.
func (f *Forward) Rules() *paramforward.Rules {
	return f.rules
}

// Describe returns the effective settings for display. Credentials are
// reduced to whether they are configured.
func (f *Forward) Describe() ForwardInfo {
	_, _, auth := f.Credentials()
	info := ForwardInfo{
		Name:            f.Name,
		URL:             f.URL(),
		Method:          f.Method(),
		Headers:         f.Headers(),
		FollowRedirects: f.FollowRedirects(),
		BasicAuth:       auth,
		Remove:          LookupOr(f.view, fwdRemove, nil),
		Default:         LookupOr(f.view, fwdDefault, nil),
		Only:            LookupOr(f.view, fwdOnly, nil),
		Set:             LookupOr(f.view, fwdSet, nil),
	}
	if t := f.Timeout(); t > 0 {
		info.Timeout = t.String()
	}
	return info
}

// RouteInfo is the display form of a route.
type RouteInfo struct {
	Path       string        `json:"path"`
	Methods    []string      `json:"methods"`
	RemoteAddr []string      `json:"remote_addr,omitempty"`
	Forwards   []ForwardInfo `json:"forwards"`
}

// ForwardInfo is the display form of a forward.
type ForwardInfo struct {
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	FollowRedirects bool              `json:"follow_redirects"`
	BasicAuth       bool              `json:"basic_auth"`
	Remove          []string          `json:"remove,omitempty"`
	Only            []string          `json:"only,omitempty"`
	Default         map[string]string `json:"default,omitempty"`
	Set             map[string]string `json:"set,omitempty"`
	Timeout         string            `json:"timeout,omitempty"`
}

// Describe returns the effective settings of the route for display.
func (r *Route) Describe() RouteInfo {
	info := RouteInfo{
		Path:       r.Path,
		Methods:    r.Methods(),
		RemoteAddr: r.allow.Entries(),
		Forwards:   make([]ForwardInfo, 0, len(r.Forwards)),
	}
	for _, f := range r.Forwards {
		info.Forwards = append(info.Forwards, f.Describe())
	}
	return info
}
