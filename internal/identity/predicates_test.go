package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

func TestCanReadDepartment(t *testing.T) {
	p := types.Principal{Departments: []string{"sales"}}
	assert.True(t, CanReadDepartment(p, "sales"))
	assert.False(t, CanReadDepartment(p, "credit"))

	super := types.Principal{IsSuperUser: true}
	assert.True(t, CanReadDepartment(super, "credit"))
}

func TestCanManageUser_DeptHeadCannotManageSelf(t *testing.T) {
	id := uuid.New()
	actor := types.Principal{UserID: id, DeptHeadFor: []string{"sales"}}
	target := types.User{ID: id}
	assert.False(t, CanManageUser(actor, target, "sales"))
}

func TestCanManageUser_CrossDepartmentForbidden(t *testing.T) {
	actor := types.Principal{UserID: uuid.New(), DeptHeadFor: []string{"sales"}}
	target := types.User{ID: uuid.New()}
	// actor heads sales, target belongs to credit: not manageable.
	assert.False(t, CanManageUser(actor, target, "credit"))
}

func TestCanManageUser_SuperUserAlwaysAllowed(t *testing.T) {
	actor := types.Principal{UserID: uuid.New(), IsSuperUser: true}
	target := types.User{ID: uuid.New()}
	assert.True(t, CanManageUser(actor, target, "credit"))
}
