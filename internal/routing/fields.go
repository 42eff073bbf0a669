package routing

import (
	"time"

	"github.com/wudi/urlforward/internal/config"
)

// Presence accessors for raw records. Nil means the record leaves the field
// to the next layer.

func routeMethods(r *config.RouteInput) ([]string, bool) { return r.Methods, r.Methods != nil }

func routeRemoteAddr(r *config.RouteInput) ([]string, bool) {
	return r.RemoteAddr, r.RemoteAddr != nil
}

func fwdURL(f *config.ForwardInput) (string, bool)    { return deref(f.URL) }
func fwdMethod(f *config.ForwardInput) (string, bool) { return deref(f.Method) }

func fwdHeaders(f *config.ForwardInput) (map[string]string, bool) {
	return f.Headers, f.Headers != nil
}

func fwdFollowRedirects(f *config.ForwardInput) (bool, bool) {
	if f.FollowRedirects == nil {
		return false, false
	}
	return *f.FollowRedirects, true
}

func fwdLogin(f *config.ForwardInput) (string, bool) {
	login, _ := f.Credentials()
	return deref(login)
}

func fwdPassword(f *config.ForwardInput) (string, bool) {
	_, password := f.Credentials()
	return deref(password)
}

func fwdRemove(f *config.ForwardInput) ([]string, bool) { return f.Remove, f.Remove != nil }
func fwdOnly(f *config.ForwardInput) ([]string, bool)   { return f.Only, f.Only != nil }

func fwdDefault(f *config.ForwardInput) (map[string]string, bool) {
	return f.Default, f.Default != nil
}

func fwdSet(f *config.ForwardInput) (map[string]string, bool) { return f.Set, f.Set != nil }

func fwdTimeout(f *config.ForwardInput) (time.Duration, bool) {
	if f.Timeout == nil {
		return 0, false
	}
	return *f.Timeout, true
}

func deref[V any](p *V) (V, bool) {
	if p == nil {
		var zero V
		return zero, false
	}
	return *p, true
}
