package fn

import "context"

// Stage is one step of a pipeline: it transforms an input into a Result.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then composes two stages; the second runs only if the first succeeds.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, in A) Result[C] {
		mid := first(ctx, in)
		if mid.IsErr() {
			_, err := mid.Unwrap()
			return Err[C](err)
		}
		v, _ := mid.Unwrap()
		return second(ctx, v)
	}
}

// Tap runs a side effect on the value without altering the pipeline.
func Tap[T any](f func(context.Context, T)) Stage[T, T] {
	return func(ctx context.Context, v T) Result[T] {
		f(ctx, v)
		return Ok(v)
	}
}
