package tenant

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	return path
}

const sampleCatalog = `
consumer_host: "app.consumer.example"
consumer_root: "consumer.example"
consumer_profile:
  slug: consumer
  display_name: "Consumer"
  auth_methods:
    oidc_consumer: true
enterprise_base:
  auth_methods:
    oidc_enterprise: true
  branding:
    primary_color: "#000000"
tenants:
  - id: "11111111-1111-1111-1111-111111111111"
    slug: acme
    subdomain: acme
    display_name: "Acme Corp"
    branding:
      primary_color: "#ff0000"
`

func TestResolveSubdomain(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	got, err := loader.Resolve("acme.consumer.example")
	require.NoError(t, err)
	assert.True(t, got.AuthMethods["oidc_enterprise"])
	assert.Equal(t, "#ff0000", got.Branding.PrimaryColor)
}

func TestResolveUnknownFallsBackToConsumer(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	got, err := loader.Resolve("nobody.consumer.example")
	require.NoError(t, err)
	assert.Equal(t, "consumer", got.Slug)
}

func TestResolveExactConsumerHost(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	got, err := loader.Resolve("app.consumer.example")
	require.NoError(t, err)
	assert.Equal(t, "consumer", got.Slug)
	assert.False(t, got.IsEnterprise)
}

func TestSanitizeExcludesInternalFields(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	loader, err := NewLoader(path)
	require.NoError(t, err)

	tnt, err := loader.BySlug("acme")
	require.NoError(t, err)
	tnt.Secrets = map[string]string{"x": "y"}
	tnt.OwnedTables = []string{"chunks_acme"}

	san := tnt.Sanitize()
	assert.Empty(t, san.Features)
	// Sanitize must not expose secrets or owned tables, nor the internal UUID.
	raw, err := json.Marshal(san)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secrets")
	assert.NotContains(t, string(raw), "owned_tables")
	assert.NotContains(t, string(raw), tnt.ID.String())
}

func TestMergeAssociative(t *testing.T) {
	base := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": "base",
	}
	a := map[string]interface{}{"a": map[string]interface{}{"x": 10}}
	b := map[string]interface{}{"a": map[string]interface{}{"y": 20}, "b": "override"}

	left := deepMerge(base, deepMerge(a, b))
	right := deepMerge(deepMerge(base, a), b)
	assert.Equal(t, right, left)
}
