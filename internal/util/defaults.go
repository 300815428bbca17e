package util

// Coalesce returns v unless it is the zero value, in which case def.
// Only use it with types whose values are comparable at runtime; interface
// values holding maps or funcs panic on ==.
func Coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
