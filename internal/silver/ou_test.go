package silver

import (
	"testing"
)

func TestParseOUHierarchy_DeepComputerDN(t *testing.T) {
	dn := "CN=CHEM-KERBY01,OU=Kerby Lab,OU=Chemistry,OU=Natural Sciences,OU=Departments,OU=LSA,OU=Colleges,OU=UMICH,DC=adsroot,DC=itcs,DC=umich,DC=edu"

	h := ParseOUHierarchy(dn, false)

	if h.Depth != 7 {
		t.Fatalf("Expected depth 7, got %d", h.Depth)
	}
	if h.Path[0] != "Kerby Lab" {
		t.Errorf("Expected leaf OU 'Kerby Lab', got %q", h.Path[0])
	}
	if h.ImmediateParent != "Kerby Lab" {
		t.Errorf("Expected immediate parent 'Kerby Lab' for a CN object, got %q", h.ImmediateParent)
	}
	if h.Root != "UMICH" {
		t.Errorf("Expected root 'UMICH', got %q", h.Root)
	}
	if h.OrganizationType != "Colleges" {
		t.Errorf("Expected organization type 'Colleges', got %q", h.OrganizationType)
	}
	if h.Organization != "LSA" {
		t.Errorf("Expected organization 'LSA', got %q", h.Organization)
	}
	if h.Category != "Departments" {
		t.Errorf("Expected category 'Departments', got %q", h.Category)
	}
	if h.Division != "Natural Sciences" {
		t.Errorf("Expected division 'Natural Sciences', got %q", h.Division)
	}
	if h.Department != "Chemistry" {
		t.Errorf("Expected department 'Chemistry', got %q", h.Department)
	}
	if h.Subdepartment != "Kerby Lab" {
		t.Errorf("Expected subdepartment 'Kerby Lab', got %q", h.Subdepartment)
	}
}

func TestParseOUHierarchy_OUObjectImmediateParent(t *testing.T) {
	dn := "OU=Kerby Lab,OU=Chemistry,OU=LSA,DC=umich,DC=edu"

	h := ParseOUHierarchy(dn, true)

	if h.Depth != 3 {
		t.Fatalf("Expected depth 3, got %d", h.Depth)
	}
	// The OU itself sits at position 0, so its parent is one step up.
	if h.ImmediateParent != "Chemistry" {
		t.Errorf("Expected immediate parent 'Chemistry' for an OU object, got %q", h.ImmediateParent)
	}
}

func TestParseOUHierarchy_ShallowDN(t *testing.T) {
	dn := "CN=someone,OU=People,DC=umich,DC=edu"

	h := ParseOUHierarchy(dn, false)

	if h.Depth != 1 {
		t.Fatalf("Expected depth 1, got %d", h.Depth)
	}
	if h.Root != "People" {
		t.Errorf("Expected root 'People', got %q", h.Root)
	}
	if h.OrganizationType != "" || h.Subdepartment != "" {
		t.Errorf("Expected deeper slots empty on a shallow DN")
	}
}

func TestParseOUHierarchy_NoOUs(t *testing.T) {
	h := ParseOUHierarchy("CN=thing,DC=umich,DC=edu", false)
	if h.Depth != 0 {
		t.Errorf("Expected depth 0 with no OU components, got %d", h.Depth)
	}
	if h.ImmediateParent != "" {
		t.Errorf("Expected empty immediate parent, got %q", h.ImmediateParent)
	}
}

func TestParseOUHierarchy_EscapedComma(t *testing.T) {
	dn := `CN=Smith\, John,OU=People,OU=UMICH,DC=umich,DC=edu`
	h := ParseOUHierarchy(dn, false)
	if h.Depth != 2 {
		t.Errorf("Expected escaped comma not to split the DN, depth = %d", h.Depth)
	}
}
