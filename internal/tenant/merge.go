// Package tenant implements the Config & Tenant Loader (C1): hostname
// resolution, enterprise-base deep-merge, and an explicitly invalidated
// in-process cache. Grounded on the teacher's layered-config style
// (internal/config) generalized from a single process config to a per-tenant
// catalog.
package tenant

// deepMerge merges override over base: map-valued keys merge recursively,
// scalar/array keys are replaced by override. Neither input is mutated.
//
// This implements the associativity law required by §8:
//
//	merge(base, merge(a, b)) == merge(merge(base, a), b)
//
// which holds because deepMerge is a pointwise, key-by-key right-biased
// merge with no cross-key interaction — merging is associative at every key
// independently (recursive maps reduce to the same base case, and
// non-map values simply take the rightmost write).
func deepMerge(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		bv, exists := out[k]
		if !exists {
			out[k] = ov
			continue
		}
		bMap, bIsMap := bv.(map[string]interface{})
		oMap, oIsMap := ov.(map[string]interface{})
		if bIsMap && oIsMap {
			out[k] = deepMerge(bMap, oMap)
			continue
		}
		out[k] = ov
	}
	return out
}

// mergeBoolMap merges a tenant's map-valued overrides (features,
// auth methods) over the enterprise base's, used by mergeProfile below.
func mergeBoolMap[K comparable](base, override map[K]bool) map[K]bool {
	out := make(map[K]bool, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
