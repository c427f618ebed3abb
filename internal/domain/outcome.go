package domain

// Redirect describes a pending navigation to the identity provider. Once a
// Redirect is produced the current operation is over: the caller hands the
// URL to whatever drives the browser and does nothing else.
type Redirect struct {
	URL string
}

// Outcome is the result of an operation that may end in a sign-in redirect
// instead of a value. The zero Outcome is Completed with the zero value.
type Outcome[T any] struct {
	value    T
	redirect *Redirect
}

// Completed wraps a value produced by an operation that ran to completion.
func Completed[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Redirected reports that the operation stopped because a sign-in redirect
// was initiated.
func Redirected[T any](r Redirect) Outcome[T] {
	return Outcome[T]{redirect: &r}
}

// RedirectTo converts a redirect outcome of one type into another, keeping
// the navigation target.
func RedirectTo[T, U any](o Outcome[U]) Outcome[T] {
	r, _ := o.Redirecting()
	return Redirected[T](r)
}

// Redirecting returns the pending redirect, if any.
func (o Outcome[T]) Redirecting() (Redirect, bool) {
	if o.redirect == nil {
		return Redirect{}, false
	}
	return *o.redirect, true
}

// Value returns the completed value. It is the zero value for redirects.
func (o Outcome[T]) Value() T {
	return o.value
}
