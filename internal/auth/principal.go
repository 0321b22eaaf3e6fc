// Package auth issues and verifies session tokens and carries the caller's
// identity through request contexts.
package auth

import "context"

// Role gates which route groups an account may use.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// Principal is the authenticated caller.
type Principal struct {
	AccountID  string `json:"account_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type ctxKey string

const principalKey ctxKey = "autoflow.principal"

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.AccountID != ""
}
