package models

import (
	"context"

	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
)

// User is the authenticated actor behind a request or a channel connection.
type User struct {
	ID   uuid.UUID      `json:"id"`
	Role types.UserRole `json:"role"`
}

func AnonymousUser() *User {
	return &User{}
}

func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == uuid.Nil
}

type userCtxKey struct{}

// WithUser stores user in ctx
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
