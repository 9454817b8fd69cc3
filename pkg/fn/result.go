// Package fn provides small functional building blocks: a tagged
// success/failure result, stage composition, and context-aware retry.
package fn

// Result carries either a value or the error that prevented one.
type Result[T any] struct {
	value   T
	failure error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Err wraps a failure.
func Err[T any](err error) Result[T] { return Result[T]{failure: err} }

// FromPair lifts a conventional (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.failure == nil }

// IsErr reports whether the result holds a failure.
func (r Result[T]) IsErr() bool { return r.failure != nil }

// Unwrap lowers the result back to a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.failure }

// UnwrapOr returns the value, or fallback when the result failed.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.failure != nil {
		return fallback
	}
	return r.value
}
