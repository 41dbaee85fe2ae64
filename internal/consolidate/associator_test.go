package consolidate

import (
	"testing"
)

func kerbyLab() []LabRow {
	return []LabRow{{
		LabID:      "lab-kerby",
		LabName:    strp("Kerby Lab"),
		PIUniqname: strp("kerby"),
		ADOuDN:     strp("OU=Kerby Lab,OU=Chemistry,OU=LSA,DC=umich,DC=edu"),
		HasADOu:    true,
	}}
}

func TestScoreComputer_OwnerIsPI(t *testing.T) {
	c := &associationInput{
		ComputerID:    "chem-kerby01",
		ComputerName:  strp("CHEM-KERBY01"),
		OwnerUniqname: strp("kerby"),
		FunctionName:  strp("Research"),
	}

	out := scoreComputer(c, kerbyLab(), map[string]map[string]bool{})
	if len(out) != 1 {
		t.Fatalf("Expected one association, got %d", len(out))
	}
	a := out[0]
	if a.method != MethodOwnerIsPI {
		t.Errorf("Expected owner_is_pi to win over name_contains_pi, got %s", a.method)
	}
	// 0.85 base + 0.08 name-has-pi + 0.05 research = 0.98
	if a.confidence < 0.97 || a.confidence > 0.99 {
		t.Errorf("Expected confidence near 0.98, got %v", a.confidence)
	}
	if !contains(a.qualityFlags, "high_confidence") {
		t.Errorf("Expected high_confidence flag at %v, flags %v", a.confidence, a.qualityFlags)
	}
}

func TestScoreComputer_Tier1FloorHolds(t *testing.T) {
	// Name match only, unaffiliated owner and fin owner, admin function:
	// 0.70 - 0.10 - 0.08 - 0.12 = 0.40 raw, clamped up to the tier-1 floor.
	c := &associationInput{
		ComputerID:       "chem-kerby02",
		ComputerName:     strp("CHEM-KERBY02"),
		OwnerUniqname:    strp("stranger"),
		FinOwnerUniqname: strp("outsider"),
		FunctionName:     strp("Administrative"),
	}

	out := scoreComputer(c, kerbyLab(), map[string]map[string]bool{})
	if len(out) != 1 {
		t.Fatalf("Expected one association, got %d", len(out))
	}
	a := out[0]
	if a.method != MethodNameHasPI {
		t.Fatalf("Expected name_contains_pi, got %s", a.method)
	}
	if a.confidence != tier1Floor {
		t.Errorf("Expected tier-1 floor %v, got %v", tier1Floor, a.confidence)
	}
	if !contains(a.qualityFlags, "owner_not_affiliated") || !contains(a.qualityFlags, "admin_function") {
		t.Errorf("Expected penalty flags recorded, got %v", a.qualityFlags)
	}
}

func TestScoreComputer_Tier2CeilingHolds(t *testing.T) {
	// Owner is a lab member but not the PI: tier-2 base 0.35 + research 0.05
	// stays under the ceiling; piling on bonuses must not cross 0.50.
	membership := map[string]map[string]bool{
		"lab-kerby": {"alice": true},
	}
	c := &associationInput{
		ComputerID:        "chem-shared01",
		ComputerName:      strp("CHEM-SHARED01"),
		DistinguishedName: strp("CN=CHEM-SHARED01,OU=Kerby Lab,OU=Chemistry,OU=LSA,DC=umich,DC=edu"),
		OwnerUniqname:     strp("alice"),
		FunctionName:      strp("Research"),
	}

	// Drop the OU from the lab so only the membership method fires.
	labs := kerbyLab()
	labs[0].HasADOu = false

	out := scoreComputer(c, labs, membership)
	if len(out) != 1 {
		t.Fatalf("Expected one association, got %d", len(out))
	}
	a := out[0]
	if a.method != MethodOwnerMember {
		t.Fatalf("Expected owner_in_lab_members, got %s", a.method)
	}
	if a.confidence > tier2Ceiling {
		t.Errorf("Expected tier-2 ceiling %v to hold, got %v", tier2Ceiling, a.confidence)
	}
	if !a.ownerIsMember {
		t.Errorf("Expected owner_is_member criterion set")
	}
}

func TestScoreComputer_OUNestingDiscovers(t *testing.T) {
	c := &associationInput{
		ComputerID:        "chem-pod01",
		ComputerName:      strp("CHEM-POD01"),
		DistinguishedName: strp("CN=CHEM-POD01,OU=Instruments,OU=Kerby Lab,OU=Chemistry,OU=LSA,DC=umich,DC=edu"),
	}

	out := scoreComputer(c, kerbyLab(), map[string]map[string]bool{})
	if len(out) != 1 {
		t.Fatalf("Expected one association from OU nesting, got %d", len(out))
	}
	a := out[0]
	if a.method != MethodADOuNested {
		t.Errorf("Expected ad_ou_nested, got %s", a.method)
	}
	if a.matchedOU == "" {
		t.Errorf("Expected matched OU recorded")
	}
	if !contains(a.qualityFlags, "no_function") {
		t.Errorf("Expected no_function flag, got %v", a.qualityFlags)
	}
}

func TestScoreComputer_NoEvidenceNoAssociation(t *testing.T) {
	c := &associationInput{
		ComputerID:   "podium-a101",
		ComputerName: strp("PODIUM-A101"),
	}
	if out := scoreComputer(c, kerbyLab(), map[string]map[string]bool{}); len(out) != 0 {
		t.Errorf("Expected no associations without evidence, got %d", len(out))
	}
}

func TestMarkPrimaries(t *testing.T) {
	all := []association{
		{computerID: "c1", labID: "lab-b", confidence: 0.80},
		{computerID: "c1", labID: "lab-a", confidence: 0.95},
		{computerID: "c2", labID: "lab-b", confidence: 0.50},
		{computerID: "c2", labID: "lab-a", confidence: 0.50},
	}

	markPrimaries(all)

	if !all[1].isPrimary || all[0].isPrimary {
		t.Errorf("Expected the highest-confidence association to be primary")
	}
	// Equal confidence: lexically smaller lab_id wins.
	if !all[3].isPrimary || all[2].isPrimary {
		t.Errorf("Expected the tie to break toward the smaller lab_id")
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
