package query

// Option is a value that may be absent. It is used by combinators that must see whether each
// side of a key is present, such as unions.
type Option[V any] struct {
	Value V
	Valid bool
}

// Some returns a present Option.
func Some[V any](v V) Option[V] {
	return Option[V]{Value: v, Valid: true}
}

// None returns an absent Option.
func None[V any]() Option[V] {
	return Option[V]{}
}

// OptionOf wraps the result of an Access call.
func OptionOf[V any](v V, ok bool) Option[V] {
	if !ok {
		return None[V]()
	}
	return Some(v)
}

// Get returns the value and whether it is present.
func (o Option[V]) Get() (V, bool) {
	return o.Value, o.Valid
}
