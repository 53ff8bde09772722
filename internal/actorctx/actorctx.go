package actorctx

import (
	"context"

	"github.com/geocoder89/studentportal/internal/domain/user"
)

type ctxKey struct{}

// WithIdentity attaches the authenticated caller to a request context so
// code below the HTTP layer can log or trace it.
func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (user.Identity, bool) {
	v, ok := ctx.Value(ctxKey{}).(user.Identity)

	return v, ok && v.ID != ""
}

func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.ID, ok
}
