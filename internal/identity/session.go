package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// UserStore is the narrow persistence surface Session needs from the
// Storage Backend: user lookup/creation and the last-login touch. It is
// intentionally separate from the Storage Backend's document/memory
// operations so Identity never depends on retrieval concerns.
type UserStore interface {
	FindUserBySubject(ctx context.Context, tenantID uuid.UUID, subject string) (*types.User, error)
	FindUserByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*types.User, error)
	CreateUser(ctx context.Context, u *types.User) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Session implements the Identity & Session contract of §4.2.
type Session struct {
	users UserStore
	cache *UserCache
}

func NewSession(users UserStore, cache *UserCache) *Session {
	return &Session{users: users, cache: cache}
}

// Authenticate runs the flow of §4.2: validate the token against the IdP
// resolved for tenant, then resolve (or auto-provision) the local user row,
// returning a Principal. autoProvision gates step 3's fallback creation.
func (s *Session) Authenticate(
	ctx context.Context, idp IdentityProvider, tenant *types.Tenant, token string, autoProvision bool,
) (types.Principal, error) {
	if token == "" {
		return types.Principal{}, apperr.New(apperr.Unauthenticated, fmt.Errorf("identity: missing bearer token"))
	}

	claims, err := idp.Validate(ctx, tenant, token)
	if err != nil {
		return types.Principal{}, err
	}

	user, err := s.resolveUser(ctx, tenant.ID, claims, autoProvision)
	if err != nil {
		return types.Principal{}, err
	}
	if !user.IsActive {
		// A principal whose is_active = false fails Unauthenticated even
		// with an otherwise valid token (§8 boundary behavior).
		return types.Principal{}, apperr.New(apperr.Unauthenticated,
			fmt.Errorf("identity: user %s is deactivated", user.ID))
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn(ctx, "identity: touch last_login failed", map[string]interface{}{"error": err.Error()})
	}
	user.LastLoginAt = now
	s.cache.Put(*user)

	return types.Principal{
		UserID:       user.ID,
		TenantID:     user.TenantID,
		Email:        user.Email,
		Departments:  user.DepartmentAccess,
		DeptHeadFor:  user.DeptHeadFor,
		IsSuperUser:  user.IsSuperUser,
		IsEnterprise: tenant.IsEnterprise,
	}, nil
}

func (s *Session) resolveUser(
	ctx context.Context, tenantID uuid.UUID, claims IdentityClaims, autoProvision bool,
) (*types.User, error) {
	if cached, ok := s.cache.GetBySubject(tenantID, claims.ExternalSubjectID); ok && claims.ExternalSubjectID != "" {
		return &cached, nil
	}

	user, err := s.users.FindUserBySubject(ctx, tenantID, claims.ExternalSubjectID)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.users.FindUserByEmail(ctx, tenantID, claims.Email)
	if err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	if user != nil {
		user.ExternalSubjectID = claims.ExternalSubjectID
		return user, nil
	}

	if !autoProvision {
		return nil, apperr.New(apperr.Unauthenticated, fmt.Errorf("identity: no user for subject/email and auto-provision disabled"))
	}

	// Fail-secure default: a newly auto-provisioned user has empty
	// department access until an admin grants it (§4.2 step 3).
	newUser := &types.User{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Email:             claims.Email,
		ExternalSubjectID: claims.ExternalSubjectID,
		DepartmentAccess:  nil,
		DeptHeadFor:       nil,
		IsSuperUser:       false,
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, newUser); err != nil {
		return nil, apperr.New(apperr.BackendUnavailable, err)
	}
	return newUser, nil
}
