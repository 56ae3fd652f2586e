package transport

import (
	"bytes"
	"context"
	"fmt"

	"stract/internal/errors"
)

// TypedHandle decodes the body of a settled call as JSON into T.
type TypedHandle[T any] struct {
	*Handle
}

// Typed wraps h so its body is decoded into T.
func Typed[T any](h *Handle) *TypedHandle[T] {
	return &TypedHandle[T]{Handle: h}
}

// CallJSON starts a call whose response is decoded into T.
func CallJSON[T any](ctx context.Context, t *Transport, method, path string, body any, opts ...CallOption) *TypedHandle[T] {
	return Typed[T](t.Call(ctx, method, path, body, opts...))
}

// Wait returns the decoded value. A JSON null body yields the zero value.
func (h *TypedHandle[T]) Wait(ctx context.Context) (T, error) {
	v, _, err := h.WaitOptional(ctx)
	return v, err
}

// WaitOptional is like Wait but reports ok=false for a null or empty body,
// so an absent value can be told apart from a zero one.
func (h *TypedHandle[T]) WaitOptional(ctx context.Context) (T, bool, error) {
	var zero T

	data, err := h.Handle.Wait(ctx)
	if err != nil {
		return zero, false, err
	}
	return decode[T](data)
}

func decode[T any](data []byte) (T, bool, error) {
	var v T

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, false, nil
	}
	if err := Unmarshal(trimmed, &v); err != nil {
		var zero T
		return zero, false, errors.NewDecodeError(fmt.Sprintf("%T", zero), data, err)
	}
	return v, true, nil
}
