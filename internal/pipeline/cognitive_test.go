package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

func TestResolveDepartmentPrefersAuthorizedOverride(t *testing.T) {
	p := types.Principal{Departments: []string{"it", "sales"}}
	got := resolveDepartment(p, "sales", "it")
	if got != "sales" {
		t.Fatalf("expected the override to win, got %q", got)
	}
}

func TestResolveDepartmentRejectsUnauthorizedOverride(t *testing.T) {
	p := types.Principal{Departments: []string{"it"}}
	got := resolveDepartment(p, "finance", "it")
	if got != "it" {
		t.Fatalf("expected to fall back to the readable inferred department, got %q", got)
	}
}

func TestResolveDepartmentFallsBackToEmptyWhenInferredIsGeneral(t *testing.T) {
	p := types.Principal{Departments: []string{"it"}}
	got := resolveDepartment(p, "", types.GeneralDepartment)
	if got != "" {
		t.Fatalf("expected empty (meaning: whatever the principal can read), got %q", got)
	}
}

func TestChunkScopeFailSecureWithNoDepartments(t *testing.T) {
	p := types.Principal{TenantID: uuid.New()}
	scope := chunkScope(p, "")
	if !scope.Empty() {
		t.Fatalf("a principal with no readable departments must get an empty scope, got %+v", scope)
	}
}

func TestChunkScopeSuperUserGetsTenantWide(t *testing.T) {
	tenantID := uuid.New()
	p := types.Principal{TenantID: tenantID, IsSuperUser: true}
	scope := chunkScope(p, "")
	if scope.TenantID != tenantID || len(scope.DepartmentIDs) != 0 {
		t.Fatalf("expected a tenant-wide scope for a super user, got %+v", scope)
	}
}

func TestMemoryScopeConsumerVsEnterprise(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()
	consumer := memoryScope(types.Principal{UserID: userID, TenantID: tenantID, IsEnterprise: false})
	if consumer.UserID != userID || consumer.TenantID != uuid.Nil {
		t.Fatalf("expected a user-scoped memory lane for consumer mode, got %+v", consumer)
	}
	enterprise := memoryScope(types.Principal{UserID: userID, TenantID: tenantID, IsEnterprise: true})
	if enterprise.TenantID != tenantID {
		t.Fatalf("expected a tenant-scoped memory lane for enterprise mode, got %+v", enterprise)
	}
}
