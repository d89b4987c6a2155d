package accessibility

// attr is the result of a single attribute read: a value and whether it
// was available.
type attr[T any] struct {
	v  T
	ok bool
}

func some[T any](v T) attr[T] { return attr[T]{v: v, ok: true} }

func none[T any]() attr[T] { return attr[T]{} }

// read turns a fallible backend read into an attr
func read[T any](v T, err error) attr[T] {
	if err != nil {
		return none[T]()
	}
	return some(v)
}

// or returns a when present, otherwise evaluates next
func (a attr[T]) or(next func() attr[T]) attr[T] {
	if a.ok {
		return a
	}
	return next()
}

// orDefault unwraps a, substituting def when absent
func (a attr[T]) orDefault(def T) T {
	if a.ok {
		return a.v
	}
	return def
}

// mapAttr transforms a present value
func mapAttr[T, U any](a attr[T], fn func(T) U) attr[U] {
	if !a.ok {
		return none[U]()
	}
	return some(fn(a.v))
}
