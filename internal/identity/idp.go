package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// IdentityClaims is what a validated bearer token yields, before any local
// user lookup.
type IdentityClaims struct {
	ExternalSubjectID string
	Email             string
}

// IdentityProvider is the external OAuth/OIDC collaborator's interface —
// deliberately the only surface Identity & Session depends on. The concrete
// implementations below (enterprise JWT, consumer opaque session) take their
// network-facing parts, key lookup and session lookup, as injected functions.
type IdentityProvider interface {
	// Validate checks token against the IdP configured for tenant and
	// returns the stable external subject id and email.
	Validate(ctx context.Context, tenant *types.Tenant, token string) (IdentityClaims, error)
}

// EnterpriseJWTProvider validates enterprise bearer tokens as JWTs signed by
// the tenant's configured issuer, using golang-jwt/jwt/v5 as the teacher's
// stack already depends on for internal session tokens.
type EnterpriseJWTProvider struct {
	// KeyFunc resolves the verification key for a token, typically backed by
	// a JWKS cache keyed by tenant issuer. Supplied by the composition root
	// so this package carries no network client of its own.
	KeyFunc jwt.Keyfunc
}

type enterpriseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (p *EnterpriseJWTProvider) Validate(
	ctx context.Context, tenant *types.Tenant, token string,
) (IdentityClaims, error) {
	if !tenant.AuthMethods[types.AuthOIDCEnterprise] {
		return IdentityClaims{}, apperr.New(apperr.Unauthenticated,
			fmt.Errorf("identity: tenant %s does not enable enterprise OIDC", tenant.Slug))
	}
	claims := &enterpriseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, p.KeyFunc)
	if err != nil || !parsed.Valid {
		return IdentityClaims{}, apperr.New(apperr.Unauthenticated, err)
	}
	return IdentityClaims{
		ExternalSubjectID: claims.Subject,
		Email:             claims.Email,
	}, nil
}

// ConsumerOpaqueProvider validates consumer-mode opaque session tokens via
// an out-of-scope session store lookup (the OAuth provider itself is
// explicitly out of scope per §1).
type ConsumerOpaqueProvider struct {
	// Lookup resolves an opaque token to identity claims, e.g. via a Redis
	// session store populated by the consumer IdP's callback.
	Lookup func(ctx context.Context, token string) (IdentityClaims, bool, error)
}

func (p *ConsumerOpaqueProvider) Validate(
	ctx context.Context, tenant *types.Tenant, token string,
) (IdentityClaims, error) {
	claims, ok, err := p.Lookup(ctx, token)
	if err != nil {
		return IdentityClaims{}, apperr.New(apperr.Unauthenticated, err)
	}
	if !ok {
		return IdentityClaims{}, apperr.New(apperr.Unauthenticated,
			fmt.Errorf("identity: unknown or expired session"))
	}
	return claims, nil
}
