package routing

// Layered reads through an explicit record to a fallback record. A field set
// on the explicit record always shadows the fallback, even when it is empty.
type Layered[T any] struct {
	explicit *T
	fallback *T
}

// NewLayered returns a view of explicit over fallback. Either may be nil.
func NewLayered[T any](explicit, fallback *T) Layered[T] {
	return Layered[T]{explicit: explicit, fallback: fallback}
}

// Explicit returns the explicit layer.
func (l Layered[T]) Explicit() *T {
	return l.explicit
}

// Lookup returns the value of the first layer where get reports the field as
// present. ok is false when no layer sets it.
func Lookup[T, V any](l Layered[T], get func(*T) (V, bool)) (v V, ok bool) {
	for _, layer := range [...]*T{l.explicit, l.fallback} {
		if layer == nil {
			continue
		}
		if v, ok = get(layer); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// LookupOr is Lookup with a value for fields no layer sets.
func LookupOr[T, V any](l Layered[T], get func(*T) (V, bool), def V) V {
	if v, ok := Lookup(l, get); ok {
		return v
	}
	return def
}
