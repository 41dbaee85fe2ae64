package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Content hashes are the change-detection primitive for Bronze: a SHA-256
// digest over a whitelisted subset of the raw document, serialized with
// sorted keys and compact separators. The ingester and the enricher MUST
// produce identical digests for identical source records, so string values
// are trimmed and absent fields are represented as the empty string.

// BasicContentHash computes the basic content hash for a raw document over
// the given field whitelist.
func BasicContentHash(raw map[string]any, whitelist []string) string {
	return hashSubset(raw, whitelist)
}

// EnrichedContentHash computes the enriched content hash: the basic field
// set plus detail-only fields.
func EnrichedContentHash(raw map[string]any, basicFields, detailFields []string) string {
	fields := make([]string, 0, len(basicFields)+len(detailFields))
	fields = append(fields, basicFields...)
	fields = append(fields, detailFields...)
	return hashSubset(raw, fields)
}

func hashSubset(raw map[string]any, whitelist []string) string {
	subset := make(map[string]any, len(whitelist))
	for _, field := range whitelist {
		subset[field] = canonicalValue(raw[field])
	}
	return HashMap(subset)
}

// HashMap computes the SHA-256 hex digest of the canonical JSON form of m.
// encoding/json marshals map keys in sorted order with compact separators,
// which is exactly the serialization the digest is defined over.
func HashMap(m map[string]any) string {
	data, err := json.Marshal(m)
	if err != nil {
		// Maps built from decoded JSON cannot fail to re-encode; a failure
		// here means a programming error upstream.
		data = []byte(fmt.Sprintf("%v", sortedPairs(m)))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EntityHash computes the Silver entity hash over a typed row represented as
// a field map, excluding provenance metadata so that re-transforming
// unchanged data yields an identical digest.
func EntityHash(fields map[string]any) string {
	business := make(map[string]any, len(fields))
	for k, v := range fields {
		if entityHashExclusions[k] {
			continue
		}
		business[k] = canonicalValue(v)
	}
	return HashMap(business)
}

// entityHashExclusions is the metadata set excluded from entity hashes.
// The transformer and any independent recomputation must share this set.
var entityHashExclusions = map[string]bool{
	"raw_id":           true,
	"raw_ids":          true,
	"entity_hash":      true,
	"ingestion_run_id": true,
	"source_system":    true,
	"created_at":       true,
	"updated_at":       true,
}

// canonicalValue normalizes values before hashing: strings are trimmed,
// missing values become the empty string, and numbers decoded from JSON stay
// as float64 so the ingester and enricher agree.
func canonicalValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return CleanString(t)
	default:
		return v
	}
}

func sortedPairs(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return pairs
}
