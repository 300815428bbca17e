package reqrs

import (
	"context"
	"fmt"
)

// Reducer is a pure state transition applied for a named operation.
type Reducer[S any] func(state S, payload any) (S, error)

// ReducerFor adapts a typed reducer. A payload that is not a P is reported as an
// InvariantError with code CodeBadPayload.
func ReducerFor[S, P any](fn func(S, P) S) Reducer[S] {
	return func(state S, payload any) (S, error) {
		p, ok := payload.(P)
		if !ok {
			var want P
			return state, &InvariantError{
				Code:    CodeBadPayload,
				Message: fmt.Sprintf("payload %T is not %T", payload, want),
			}
		}
		return fn(state, p), nil
	}
}

// ReducerOf adapts a reducer that takes no payload.
func ReducerOf[S any](fn func(S) S) Reducer[S] {
	return func(state S, _ any) (S, error) { return fn(state), nil }
}

// RequestFunc performs the external call of an effect or command.
// Failures should be *RequestError; other errors are converted by AsRequestError.
type RequestFunc func(ctx context.Context, payload any) (any, error)

// Request adapts a typed request function.
func Request[P, R any](fn func(context.Context, P) (R, error)) RequestFunc {
	return func(ctx context.Context, payload any) (any, error) {
		p, ok := payload.(P)
		if !ok && payload != nil {
			var want P
			return nil, &InvariantError{
				Code:    CodeBadPayload,
				Message: fmt.Sprintf("request payload %T is not %T", payload, want),
			}
		}
		return fn(ctx, p)
	}
}

// EffectSpec pairs a request with the reducer applied to its result.
type EffectSpec[S any] struct {
	Request RequestFunc
	Reducer Reducer[S]
}

type operationKey struct{}

// WithOperation records the operation that issues a request.
func WithOperation(ctx context.Context, actionType string) context.Context {
	return context.WithValue(ctx, operationKey{}, actionType)
}

// OperationFrom returns the "<slice>/<op>" that issued the request, if any.
// A request shared by several effects can branch on it.
func OperationFrom(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operationKey{}).(string)
	return op, ok
}
