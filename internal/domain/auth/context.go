package auth

import "context"

type authContextKey struct{}

// ContextWithAuth attaches the resolved session to ctx.
func ContextWithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok || ac == nil {
		return nil, false
	}
	return ac, true
}

// CurrentUserID returns the id of the authenticated user or ErrUnauthenticated.
func CurrentUserID(ctx context.Context) (int64, error) {
	ac, ok := FromContext(ctx)
	if !ok || ac.UserID <= 0 {
		return 0, ErrUnauthenticated
	}
	return ac.UserID, nil
}
