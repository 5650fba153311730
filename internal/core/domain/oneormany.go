package domain

// OneOrMany carries a field that vendors send either as a single value or
// as a list (a prompt or a list of prompts, one vector or many). The
// distinction survives a round trip so the encoder can reproduce it.
type OneOrMany[T any] struct {
	one    T
	many   []T
	isMany bool
}

func Single[T any](v T) OneOrMany[T] {
	return OneOrMany[T]{one: v}
}

func Many[T any](vs []T) OneOrMany[T] {
	return OneOrMany[T]{many: vs, isMany: true}
}

func (o OneOrMany[T]) IsMany() bool {
	return o.isMany
}

// Items always returns a slice, wrapping a single value.
func (o OneOrMany[T]) Items() []T {
	if o.isMany {
		return o.many
	}
	return []T{o.one}
}

func (o OneOrMany[T]) Len() int {
	if o.isMany {
		return len(o.many)
	}
	return 1
}

// First returns the first element; ok is false for an empty Many.
func (o OneOrMany[T]) First() (T, bool) {
	if !o.isMany {
		return o.one, true
	}
	if len(o.many) == 0 {
		var zero T
		return zero, false
	}
	return o.many[0], true
}

// Normalised collapses a one element Many into Single, the shape encoders
// use when a dialect prefers the scalar form for exactly one value.
func (o OneOrMany[T]) Normalised() OneOrMany[T] {
	if o.isMany && len(o.many) == 1 {
		return Single(o.many[0])
	}
	return o
}
