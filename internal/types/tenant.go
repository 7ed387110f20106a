package types

import "github.com/google/uuid"

// AuthMethod is one of the auth methods a tenant may enable.
type AuthMethod string

const (
	AuthOIDCEnterprise AuthMethod = "oidc_enterprise"
	AuthOIDCConsumer   AuthMethod = "oidc_consumer"
	AuthPassword       AuthMethod = "password"
)

// Branding carries a tenant's visual identity.
type Branding struct {
	LogoURL      string `json:"logo_url,omitempty" yaml:"logo_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty" yaml:"primary_color,omitempty"`
	ThemeCSSURL  string `json:"theme_css_url,omitempty" yaml:"theme_css_url,omitempty"`
}

// Tenant is the internal, full representation of a tenant profile. Never
// serialized directly to a client — see SanitizedProfile.
type Tenant struct {
	ID             uuid.UUID         `json:"id" yaml:"id"`
	Slug           string            `json:"slug" yaml:"slug"`
	DisplayName    string            `json:"display_name" yaml:"display_name"`
	CustomDomain   string            `json:"custom_domain,omitempty" yaml:"custom_domain,omitempty"`
	Subdomain      string            `json:"subdomain,omitempty" yaml:"subdomain,omitempty"`
	AuthMethods    map[AuthMethod]bool `json:"auth_methods" yaml:"auth_methods"`
	Features       map[string]bool   `json:"features" yaml:"features"`
	Branding       Branding          `json:"branding" yaml:"branding"`
	Departments    []Department      `json:"departments" yaml:"departments"`
	OwnedTables    []string          `json:"owned_tables" yaml:"owned_tables"`
	Secrets        map[string]string `json:"-" yaml:"secrets,omitempty"`
	IsEnterprise   bool              `json:"is_enterprise" yaml:"is_enterprise"`
}

// SanitizedProfile is the subset of Tenant returned to clients by
// GET /api/tenant/config: it excludes the internal UUID, owned table list,
// and any secrets (§4.1).
type SanitizedProfile struct {
	Slug        string              `json:"slug"`
	DisplayName string              `json:"display_name"`
	AuthMethods map[AuthMethod]bool `json:"auth_methods"`
	Features    map[string]bool     `json:"features"`
	Branding    Branding            `json:"branding"`
	Departments []Department        `json:"departments"`
}

// Sanitize produces the client-safe view of a tenant.
func (t *Tenant) Sanitize() *SanitizedProfile {
	return &SanitizedProfile{
		Slug:        t.Slug,
		DisplayName: t.DisplayName,
		AuthMethods: t.AuthMethods,
		Features:    t.Features,
		Branding:    t.Branding,
		Departments: t.Departments,
	}
}

// DepartmentSlugs returns the tenant's configured department slugs, used by
// the Heuristics Engine's department analyzer (§4.6.2) so it tolerates
// tenants with fewer or renamed departments.
func (t *Tenant) DepartmentSlugs() []string {
	out := make([]string, 0, len(t.Departments))
	for _, d := range t.Departments {
		out = append(out, d.Slug)
	}
	return out
}

// HasDepartment reports whether slug is in this tenant's department catalog.
// A slug outside the catalog must be treated as "no access", never remapped.
func (t *Tenant) HasDepartment(slug string) bool {
	for _, d := range t.Departments {
		if d.Slug == slug {
			return true
		}
	}
	return false
}
