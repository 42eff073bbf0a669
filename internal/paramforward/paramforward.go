package paramforward

import (
	"net/url"
)

// Rules transforms inbound parameters into the parameters of one forward.
// Precedence is default < inbound < set: defaults form the base map, the
// inbound parameters that survive remove and only are laid over it, and set
// entries are applied last. Set entries are never filtered.
type Rules struct {
	remove   map[string]struct{}
	only     map[string]struct{} // nil when not configured
	defaults map[string]string
	set      map[string]string
}

// New builds rules. A nil only places no restriction; an empty non-nil only
// drops every inbound parameter.
func New(remove, only []string, defaults, set map[string]string) *Rules {
	r := &Rules{
		remove:   toSet(remove),
		defaults: defaults,
		set:      set,
	}
	if only != nil {
		r.only = toSet(only)
	}
	return r
}

func toSet(keys []string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Apply returns the outbound parameters for inbound. Neither inbound nor the
// configured maps are modified.
func (r *Rules) Apply(inbound map[string]string) map[string]string {
	out := make(map[string]string, len(r.defaults)+len(inbound)+len(r.set))
	for k, v := range r.defaults {
		out[k] = v
	}
	for k, v := range inbound {
		if !r.accepts(k) {
			continue
		}
		out[k] = v
	}
	for k, v := range r.set {
		out[k] = v
	}
	return out
}

func (r *Rules) accepts(key string) bool {
	if _, removed := r.remove[key]; removed {
		return false
	}
	if r.only != nil {
		if _, ok := r.only[key]; !ok {
			return false
		}
	}
	return true
}

// Dropped returns the inbound keys Apply filters out, for debug logging.
func (r *Rules) Dropped(inbound map[string]string) []string {
	var dropped []string
	for k := range inbound {
		if !r.accepts(k) {
			dropped = append(dropped, k)
		}
	}
	return dropped
}

// FromValues flattens multi-valued form data to the first value of each key.
func FromValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}
