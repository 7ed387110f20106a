package types

// Department is a namespace, scoped to a tenant, used for access checks and
// content routing. It carries no behavior of its own.
type Department struct {
	Slug        string `json:"slug" yaml:"slug"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// DefaultDepartments is the default seven-department set the Heuristics
// Engine ships with (§9 Open Questions); tenants may override via their own
// catalog in Tenant.Departments.
var DefaultDepartments = []Department{
	{Slug: "it", DisplayName: "IT"},
	{Slug: "sales", DisplayName: "Sales"},
	{Slug: "support", DisplayName: "Support"},
	{Slug: "finance", DisplayName: "Finance"},
	{Slug: "hr", DisplayName: "Human Resources"},
	{Slug: "legal", DisplayName: "Legal"},
	{Slug: "operations", DisplayName: "Operations"},
}

// GeneralDepartment is the fallback primary department when no signal
// clears the classification threshold (§4.6.2).
const GeneralDepartment = "general"
