package solo

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/ib-77/batchpipe/pkg/rop"
)

// Validate checks the input and returns it as a success, or a failure carrying
// the returned error.
func Validate[T any](ctx context.Context, input T,
	validate func(ctx context.Context, in T) error) rop.Result[T] {
	return AndValidate(ctx, rop.Success(input), validate)
}

func AndValidate[T any](ctx context.Context, input rop.Result[T],
	validate func(ctx context.Context, in T) error) rop.Result[T] {

	if input.IsSuccess() {
		if err := validate(ctx, input.Result()); err != nil {
			return rop.Fail[T](err).WithID(input.Id())
		}
	}
	return input
}

// Recover runs fn and turns a panic into a *rop.PanicError. Whether that error
// is an ordinary failure or a defect is up to the caller.
func Recover(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &rop.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Guard runs a step of the machinery itself. A panic inside it becomes a
// Defect result instead of unwinding the caller.
func Guard[T any](ctx context.Context, step func(ctx context.Context) rop.Result[T]) (res rop.Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = rop.Defect[T](&rop.PanicError{Value: p, Stack: debug.Stack()})
		}
	}()
	return step(ctx)
}

// IsPanic reports whether err came out of Recover or Guard.
func IsPanic(err error) bool {
	var pe *rop.PanicError
	return errors.As(err, &pe)
}

type TeeHandlers[T any] struct {
	OnSuccess func(ctx context.Context, r rop.Result[T])
	OnFailure func(ctx context.Context, r rop.Result[T])
	OnCancel  func(ctx context.Context, r rop.Result[T])
	OnDefect  func(ctx context.Context, r rop.Result[T])
}

// DoubleTee routes the result to the side effect matching its kind and returns
// it unchanged. Nil handlers are skipped.
func DoubleTee[T any](ctx context.Context, input rop.Result[T], handlers TeeHandlers[T]) rop.Result[T] {
	var h func(ctx context.Context, r rop.Result[T])
	switch input.Kind() {
	case rop.KindSuccess:
		h = handlers.OnSuccess
	case rop.KindFailure:
		h = handlers.OnFailure
	case rop.KindCancel:
		h = handlers.OnCancel
	case rop.KindDefect:
		h = handlers.OnDefect
	}
	if h != nil {
		h(ctx, input)
	}
	return input
}
