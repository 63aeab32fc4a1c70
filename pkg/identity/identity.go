package identity

// Package identity abstracts the external identity provider. The engine only
// ever asks "who is calling"; session management lives outside this module.

import (
	"context"
)

// User is the resolved caller identity.
type User struct {
	Subject string `json:"subject"`
}

// Provider resolves the current user. A nil user with a nil error means
// "no identity": mutation entry points reject, listing degrades to empty.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// Static always answers with a fixed subject. It backs the CLI, where the
// local user is the only identity.
type Static struct {
	Subject string
}

func (s *Static) CurrentUser(_ context.Context) (*User, error) {
	if s == nil || s.Subject == "" {
		return nil, nil
	}
	return &User{Subject: s.Subject}, nil
}

// Anonymous never resolves a user. Useful in tests for the unauthenticated
// paths.
type Anonymous struct{}

func (Anonymous) CurrentUser(_ context.Context) (*User, error) {
	return nil, nil
}

type contextKey struct{}

// WithUser injects a user into the context; FromContext retrieves it. The
// Context provider resolves identities this way, which is how tests and
// request-scoped callers impersonate users.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(contextKey{}).(*User)
	return u
}

// Context resolves the user from the request context.
type Context struct{}

func (Context) CurrentUser(ctx context.Context) (*User, error) {
	return FromContext(ctx), nil
}

var (
	_ Provider = (*Static)(nil)
	_ Provider = Anonymous{}
	_ Provider = Context{}
)
