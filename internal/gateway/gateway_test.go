package gateway

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusForKind(apperr.Unauthenticated))
	assert.Equal(t, http.StatusForbidden, statusForKind(apperr.Forbidden))
	assert.Equal(t, http.StatusNotFound, statusForKind(apperr.TenantUnknown))
	assert.Equal(t, http.StatusNotFound, statusForKind(apperr.TenantInvalid))
	assert.Equal(t, http.StatusConflict, statusForKind(apperr.BackendConflict))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind(apperr.RetrievalFailed))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind(apperr.BackendUnavailable))
	assert.Equal(t, http.StatusRequestTimeout, statusForKind(apperr.QueryCanceled))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(apperr.Kind("anything-else")))
}

func TestPublicMessageNeverLeaksCause(t *testing.T) {
	for _, k := range []apperr.Kind{
		apperr.Unauthenticated, apperr.Forbidden, apperr.TenantUnknown, apperr.TenantInvalid,
		apperr.BackendConflict, apperr.QueryCanceled, apperr.RetrievalFailed,
		apperr.EmbedderUnavail, apperr.ProviderUnavail, apperr.BackendUnavailable,
	} {
		msg := publicMessage(k)
		assert.NotEmpty(t, msg)
	}
	assert.Equal(t, "internal error", publicMessage(apperr.Kind("unmapped")))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc123", bearerToken("Bearer abc123"))
	assert.Equal(t, "", bearerToken("Basic abc123"))
	assert.Equal(t, "", bearerToken(""))
}

func TestCanManageAny_SuperUserAlwaysAllowed(t *testing.T) {
	actor := types.Principal{UserID: uuid.New(), IsSuperUser: true}
	target := types.User{ID: uuid.New(), DepartmentAccess: []string{"credit"}}
	assert.True(t, canManageAny(actor, target))
}

func TestCanManageAny_DeptHeadOverTargetDepartment(t *testing.T) {
	actor := types.Principal{UserID: uuid.New(), DeptHeadFor: []string{"sales"}}
	target := types.User{ID: uuid.New(), DepartmentAccess: []string{"sales"}}
	assert.True(t, canManageAny(actor, target))
}

func TestCanManageAny_DeptHeadCannotManageSelf(t *testing.T) {
	id := uuid.New()
	actor := types.Principal{UserID: id, DeptHeadFor: []string{"sales"}}
	target := types.User{ID: id, DepartmentAccess: []string{"sales"}}
	assert.False(t, canManageAny(actor, target))
}

func TestCanManageAny_NoOverlappingDepartment(t *testing.T) {
	actor := types.Principal{UserID: uuid.New(), DeptHeadFor: []string{"sales"}}
	target := types.User{ID: uuid.New(), DepartmentAccess: []string{"credit"}}
	assert.False(t, canManageAny(actor, target))
}
