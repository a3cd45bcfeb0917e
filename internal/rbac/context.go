package rbac

import "context"

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context. Only the HTTP
// edge uses it; handlers unwrap it and pass the principal explicitly.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
