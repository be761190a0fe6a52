package models

import (
	"context"
)

type accessTokenKey struct{}

// WithAccessToken attaches the caller's Supabase access token so repositories
// run their queries under that session.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

type result[T any] struct {
	val T
	err error
}

// withContext runs fn and gives up waiting once ctx is done. The Supabase
// clients take no context, so the underlying HTTP call keeps running; only
// the caller stops waiting for it.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type execResult struct {
	raw   []byte
	count int64
}

// execute wraps a PostgREST Execute call with the caller's deadline.
func execute(ctx context.Context, fn func() ([]byte, int64, error)) ([]byte, int64, error) {
	r, err := withContext(ctx, func() (execResult, error) {
		raw, count, err := fn()
		return execResult{raw: raw, count: count}, err
	})
	return r.raw, r.count, err
}
