package rop

import (
	"github.com/google/uuid"
)

// Kind tags the terminal state carried by a Result.
type Kind int

const (
	KindEmpty Kind = iota
	KindSuccess
	KindFailure
	KindCancel
	KindDefect
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindCancel:
		return "cancel"
	case KindDefect:
		return "defect"
	default:
		return "empty"
	}
}

type Result[T any] struct {
	id     uuid.UUID
	result T
	err    error
	kind   Kind
}

func Success[T any](r T) Result[T] {
	return Result[T]{
		result: r,
		kind:   KindSuccess,
		id:     uuid.New(),
	}
}

// SuccessWithID is Success for callers that already own an identity for the
// unit of work, e.g. a batch id assigned at intake.
func SuccessWithID[T any](id uuid.UUID, r T) Result[T] {
	res := Success(r)
	res.id = id
	return res
}

func Fail[T any](err error) Result[T] {
	return Result[T]{
		err:  err,
		kind: KindFailure,
		id:   uuid.New(),
	}
}

// FailWithResult keeps a partial value next to the error, e.g. the attempt
// count of an invocation that exhausted its retries.
func FailWithResult[T any](id uuid.UUID, r T, err error) Result[T] {
	res := Fail[T](err)
	res.id = id
	res.result = r
	return res
}

func Cancel[T any](err error) Result[T] {
	return Result[T]{
		err:  err,
		kind: KindCancel,
		id:   uuid.New(),
	}
}

// Defect marks a broken invariant of the machinery itself. It is never the
// outcome of ordinary work and must not be handled like a Fail.
func Defect[T any](err error) Result[T] {
	return Result[T]{
		err:  err,
		kind: KindDefect,
		id:   uuid.New(),
	}
}

// WithID re-keys a result to the given id.
func (r Result[T]) WithID(id uuid.UUID) Result[T] {
	r.id = id
	return r
}

func (r Result[T]) Result() T {
	return r.result
}

func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) Kind() Kind {
	return r.kind
}

func (r Result[T]) IsSuccess() bool {
	return r.kind == KindSuccess
}

func (r Result[T]) IsFailure() bool {
	return r.kind == KindFailure
}

func (r Result[T]) IsCancel() bool {
	return r.kind == KindCancel
}

func (r Result[T]) IsDefect() bool {
	return r.kind == KindDefect
}

func (r Result[T]) Id() uuid.UUID {
	return r.id
}
