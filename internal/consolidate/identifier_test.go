package consolidate

import (
	"testing"
)

func TestParseIdentifier_DNContainers(t *testing.T) {
	cases := []struct {
		in       string
		wantID   string
		wantKind string
	}{
		{"uid=KERBY,ou=People,dc=umich,dc=edu", "kerby", IdentUser},
		{"CN=alice,OU=Accounts,DC=adsroot,DC=itcs,DC=umich,DC=edu", "alice", IdentUser},
		{"cn=lsa-chem-admins,ou=User Groups,ou=Groups,dc=umich,dc=edu", "lsa-chem-admins", IdentGroup},
		{"cn=mystery,ou=Resources,dc=umich,dc=edu", "", IdentUnknown},
	}
	for _, c := range cases {
		id, kind := ParseIdentifier(c.in)
		if id != c.wantID || kind != c.wantKind {
			t.Errorf("ParseIdentifier(%q) = (%q, %s), want (%q, %s)",
				c.in, id, kind, c.wantID, c.wantKind)
		}
	}
}

func TestParseIdentifier_BareStrings(t *testing.T) {
	cases := []struct {
		in       string
		wantID   string
		wantKind string
	}{
		{"kerby", "kerby", IdentUser},
		{"KERBY", "kerby", IdentUser},
		{"lsa-chem-admins", "lsa-chem-admins", IdentGroup},
		{"Chemistry Department Staff", "Chemistry Department Staff", IdentGroup},
		{"", "", IdentUnknown},
	}
	for _, c := range cases {
		id, kind := ParseIdentifier(c.in)
		if id != c.wantID || kind != c.wantKind {
			t.Errorf("ParseIdentifier(%q) = (%q, %s), want (%q, %s)",
				c.in, id, kind, c.wantID, c.wantKind)
		}
	}
}

func TestQualityScore_Clamps(t *testing.T) {
	q := newQualityScore()
	q.penalize(0.60, "a")
	q.penalize(0.60, "b")
	if got := q.Score(); got != 0 {
		t.Errorf("Expected score clamped to 0, got %v", got)
	}

	q = newQualityScore()
	q.bonus(0.50, "")
	if got := q.Score(); got != 1 {
		t.Errorf("Expected score clamped to 1, got %v", got)
	}
	if q.Flags() != nil {
		t.Errorf("Expected nil flags when clean, got %v", q.Flags())
	}
}
