package hashing

import (
	"testing"
)

func TestBasicContentHash_IgnoresNonWhitelistedFields(t *testing.T) {
	whitelist := []string{"Name", "Serial"}

	a := map[string]any{"Name": "host01", "Serial": "ABC", "Noise": "x"}
	b := map[string]any{"Name": "host01", "Serial": "ABC", "Noise": "completely different"}

	if BasicContentHash(a, whitelist) != BasicContentHash(b, whitelist) {
		t.Errorf("Expected equal hashes when only non-whitelisted fields differ")
	}
}

func TestBasicContentHash_DetectsWhitelistedChange(t *testing.T) {
	whitelist := []string{"Name", "Serial"}

	a := map[string]any{"Name": "host01", "Serial": "ABC"}
	b := map[string]any{"Name": "host01", "Serial": "XYZ"}

	if BasicContentHash(a, whitelist) == BasicContentHash(b, whitelist) {
		t.Errorf("Expected different hashes when a whitelisted field changes")
	}
}

func TestBasicContentHash_MissingFieldEqualsEmpty(t *testing.T) {
	whitelist := []string{"Name", "Serial"}

	withEmpty := map[string]any{"Name": "host01", "Serial": ""}
	without := map[string]any{"Name": "host01"}

	if BasicContentHash(withEmpty, whitelist) != BasicContentHash(without, whitelist) {
		t.Errorf("Expected absent and empty whitelisted fields to hash identically")
	}
}

func TestEnrichedContentHash_IncludesDetailFields(t *testing.T) {
	basic := []string{"Name"}
	detail := []string{"Attributes"}

	a := map[string]any{"Name": "host01", "Attributes": []any{"one"}}
	b := map[string]any{"Name": "host01", "Attributes": []any{"two"}}

	if EnrichedContentHash(a, basic, detail) == EnrichedContentHash(b, basic, detail) {
		t.Errorf("Expected detail field changes to alter the enriched hash")
	}
	if EnrichedContentHash(a, basic, detail) == BasicContentHash(a, basic) {
		t.Errorf("Expected enriched hash to differ from basic hash when detail fields exist")
	}
}

func TestEntityHash_ExcludesMetadataColumns(t *testing.T) {
	a := map[string]any{
		"uniqname":    "kerby",
		"first_name":  "Kerby",
		"entity_hash": "stale",
		"raw_id":      int64(1),
	}
	b := map[string]any{
		"uniqname":         "kerby",
		"first_name":       "Kerby",
		"entity_hash":      "different",
		"raw_id":           int64(99),
		"ingestion_run_id": "some-uuid",
		"source_system":    "tdx",
	}

	if EntityHash(a) != EntityHash(b) {
		t.Errorf("Expected metadata columns to be excluded from the entity hash")
	}
}

func TestEntityHash_Deterministic(t *testing.T) {
	row := map[string]any{"uniqname": "kerby", "is_active": true, "empl_rcd": 0}

	first := EntityHash(row)
	for i := 0; i < 10; i++ {
		if got := EntityHash(row); got != first {
			t.Fatalf("Expected stable hash across calls, got %s then %s", first, got)
		}
	}
}

func TestNormalizeMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:ff", "AABBCCDDEEFF"},
		{"AA-BB-CC-DD-EE-FF", "AABBCCDDEEFF"},
		{"aabb.ccdd.eeff", "AABBCCDDEEFF"},
		{" aa bb cc dd ee ff ", "AABBCCDDEEFF"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeMAC(c.in); got != c.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeUniqname(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"KERBY", "kerby"},
		{"kerby@umich.edu", "kerby"},
		{"  Kerby ", "kerby"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeUniqname(c.in); got != c.want {
			t.Errorf("NormalizeUniqname(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeUUID_NullSentinel(t *testing.T) {
	if got := NormalizeUUID(NullUUID); got != "" {
		t.Errorf("Expected null UUID sentinel to normalize to empty, got %q", got)
	}
	if got := NormalizeUUID("123e4567-e89b-12d3-a456-426614174000"); got == "" {
		t.Errorf("Expected real UUID to survive normalization")
	}
}
