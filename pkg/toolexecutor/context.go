package toolexecutor

import "context"

// Principal is the authenticated identity an action executes on behalf of.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Valid reports whether the principal carries an identity.
func (p Principal) Valid() bool {
	return p.ID != ""
}

type principalKey struct{}

// ContextWithPrincipal attaches the principal to a context.Context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !p.Valid() {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal from a context.Context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.Valid()
}
