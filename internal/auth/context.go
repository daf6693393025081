// ABOUTME: Carries the authenticated principal through request handlers
// ABOUTME: WithPrincipal/PrincipalFrom wrap context values

package auth

import "context"

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated principal id.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFrom returns the principal id stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok && id != ""
}
