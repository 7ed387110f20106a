package tenant

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/types"
	"gopkg.in/yaml.v3"
)

// Catalog is the raw, on-disk representation of every tenant plus the
// enterprise base profile and the reserved consumer profile.
type Catalog struct {
	ConsumerHost   string        `yaml:"consumer_host"`
	ConsumerRoot   string        `yaml:"consumer_root"`
	ConsumerProfile types.Tenant `yaml:"consumer_profile"`
	EnterpriseBase types.Tenant  `yaml:"enterprise_base"`
	Tenants        []types.Tenant `yaml:"tenants"`
}

// Loader resolves a hostname to a types.Tenant, applying the deep-merge of
// §4.1 and caching by slug and by hostname with explicit invalidation.
type Loader struct {
	mu      sync.RWMutex
	catalog Catalog
	bySlug  map[string]*types.Tenant // merged, ready-to-serve profiles
	byHost  map[string]*types.Tenant
}

// NewLoader parses the catalog file at path. A malformed catalog is a
// startup failure (TenantProfileInvalid), never deferred to request time.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{}
	if err := l.reload(path); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh re-reads the catalog file, atomically swapping the cache. Called
// by the catalog file watcher (config.WatchTenantCatalog) that
// cmd/gateway registers.
func (l *Loader) Refresh(path string) error {
	return l.reload(path)
}

func (l *Loader) reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return apperr.Newf(apperr.TenantInvalid, "tenant: read catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return apperr.Newf(apperr.TenantInvalid, "tenant: parse catalog: %w", err)
	}
	if cat.ConsumerHost == "" {
		return apperr.New(apperr.TenantInvalid, fmt.Errorf("tenant: consumer_host is required"))
	}

	bySlug := make(map[string]*types.Tenant, len(cat.Tenants))
	byHost := make(map[string]*types.Tenant, len(cat.Tenants)*2+1)

	consumer := cat.ConsumerProfile
	consumer.IsEnterprise = false
	byHost[strings.ToLower(cat.ConsumerHost)] = &consumer

	for i := range cat.Tenants {
		t := cat.Tenants[i]
		merged := mergeProfile(cat.EnterpriseBase, t)
		merged.IsEnterprise = true
		bySlug[merged.Slug] = merged
		if merged.Subdomain != "" {
			byHost[strings.ToLower(merged.Subdomain)+"."+strings.ToLower(cat.ConsumerRoot)] = merged
		}
		if merged.CustomDomain != "" {
			byHost[strings.ToLower(merged.CustomDomain)] = merged
		}
	}

	l.mu.Lock()
	l.catalog = cat
	l.bySlug = bySlug
	l.byHost = byHost
	l.mu.Unlock()
	return nil
}

// mergeProfile deep-merges override over base per §4.1: AuthMethods,
// Features and Secrets merge key by key, Branding field by field; ID and
// Slug always come from override; every other field is replaced wholesale
// by override when override sets a non-zero value, and a profile left with
// no Departments gets DefaultDepartments.
func mergeProfile(base, override types.Tenant) *types.Tenant {
	merged := base // copy
	merged.AuthMethods = mergeBoolMap(base.AuthMethods, override.AuthMethods)
	merged.Features = mergeBoolMap(base.Features, override.Features)

	merged.ID = override.ID
	merged.Slug = override.Slug
	if override.DisplayName != "" {
		merged.DisplayName = override.DisplayName
	}
	if override.CustomDomain != "" {
		merged.CustomDomain = override.CustomDomain
	}
	if override.Subdomain != "" {
		merged.Subdomain = override.Subdomain
	}
	if override.Branding.LogoURL != "" {
		merged.Branding.LogoURL = override.Branding.LogoURL
	}
	if override.Branding.PrimaryColor != "" {
		merged.Branding.PrimaryColor = override.Branding.PrimaryColor
	}
	if override.Branding.ThemeCSSURL != "" {
		merged.Branding.ThemeCSSURL = override.Branding.ThemeCSSURL
	}
	if len(override.Departments) > 0 {
		merged.Departments = override.Departments
	} else if len(merged.Departments) == 0 {
		merged.Departments = types.DefaultDepartments
	}
	if len(override.OwnedTables) > 0 {
		merged.OwnedTables = override.OwnedTables
	}
	if len(override.Secrets) > 0 {
		secrets := make(map[string]string, len(base.Secrets)+len(override.Secrets))
		for k, v := range base.Secrets {
			secrets[k] = v
		}
		for k, v := range override.Secrets {
			secrets[k] = v
		}
		merged.Secrets = secrets
	}
	return &merged
}

// Resolve implements the resolution rules of §4.1, in order:
//  1. exact match on the reserved consumer host -> consumer profile
//  2. host of form <sub>.<consumer_root> -> lookup by subdomain; miss falls
//     back to the consumer profile
//  3. host equal to a tenant's custom domain -> that tenant
//  4. otherwise -> consumer profile
//
// Resolve is a pure function of h and the current catalog snapshot (§8).
func (l *Loader) Resolve(h string) (*types.Tenant, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.byHost == nil {
		return nil, apperr.New(apperr.TenantInvalid, fmt.Errorf("tenant: catalog not loaded"))
	}

	if t, ok := l.byHost[h]; ok {
		return t, nil
	}
	// Rule 2 is already folded into byHost at load time (subdomain.root key);
	// a miss on h falls through to the consumer profile (rule 4), which also
	// covers the custom-domain miss case. The custom-domain hit (rule 3) is
	// likewise folded into byHost.
	consumer, ok := l.byHost[l.catalog.ConsumerHost]
	if !ok {
		return nil, apperr.New(apperr.TenantUnknown, fmt.Errorf("tenant: no consumer profile configured"))
	}
	return consumer, nil
}

// BySlug returns the cached, merged tenant profile for slug, or
// TenantUnknown if absent.
func (l *Loader) BySlug(slug string) (*types.Tenant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.bySlug[slug]
	if !ok {
		return nil, apperr.New(apperr.TenantUnknown, fmt.Errorf("tenant: unknown slug %q", slug))
	}
	return t, nil
}

// Slugs lists every tenant currently in the catalog, used by the
// composition root to register one Trend & Anomaly Detector cron job per
// tenant at startup; jobs are not re-registered when the catalog reloads.
func (l *Loader) Slugs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.bySlug))
	for slug := range l.bySlug {
		out = append(out, slug)
	}
	return out
}
