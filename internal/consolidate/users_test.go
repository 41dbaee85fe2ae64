package consolidate

import (
	"testing"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestMergeUser_NamePrecedence(t *testing.T) {
	tdx := &TDXUserRow{
		UID:          "uid-1",
		FirstName:    strp("Kerby"),
		LastName:     strp("Smith"),
		PrimaryEmail: strp("kerby@umich.edu"),
		IsActive:     boolp(true),
	}
	mcom := &MCommunityUserRow{
		UID:         "kerby",
		GivenName:   strp("Kerberos"),
		Surname:     strp("Smythe"),
		DisplayName: strp("Kerby Smith (Chemistry)"),
		Mail:        strp("kerby@mcom.example"),
	}

	v := mergeUser("kerby", tdx, nil, nil, mcom, nil, map[string]bool{})

	if v["first_name"] != "Kerby" {
		t.Errorf("Expected TDX first name to win, got %v", v["first_name"])
	}
	if v["full_name"] != "Smith, Kerby" {
		t.Errorf("Expected derived 'Last, First' full name, got %v", v["full_name"])
	}
	if v["primary_email"] != "kerby@umich.edu" {
		t.Errorf("Expected TDX email to win over MCommunity, got %v", v["primary_email"])
	}
}

func TestMergeUser_DerivedNameFallsBackToDisplay(t *testing.T) {
	mcom := &MCommunityUserRow{
		UID:         "kerby",
		DisplayName: strp("Kerby Smith"),
	}

	v := mergeUser("kerby", nil, nil, nil, mcom, nil, map[string]bool{})

	if v["full_name"] != "Kerby Smith" {
		t.Errorf("Expected MCommunity display name when no first/last pair, got %v", v["full_name"])
	}
	if v["first_name"] != nil {
		t.Errorf("Expected nil first name, got %v", v["first_name"])
	}
}

func TestMergeUser_EmploymentAggregation(t *testing.T) {
	employments := []UMAPIUserRow{
		{Uniqname: "kerby", EmplRcd: 0, EmplID: strp("10000001"), JobTitle: strp("Professor"),
			DepartmentID: strp("173500"), DepartmentName: strp("LSA Chemistry"),
			JobCode: strp("201040"), IsActive: boolp(true)},
		{Uniqname: "kerby", EmplRcd: 1, EmplID: strp("10000001"), JobTitle: strp("Lecturer"),
			DepartmentID: strp("184200"), DepartmentName: strp("LSA Physics"),
			JobCode: strp("201300"), IsActive: boolp(false)},
	}
	primary := &employments[0]

	v := mergeUser("kerby", nil, primary, employments, nil, nil, map[string]bool{})

	if v["job_title"] != "Professor" {
		t.Errorf("Expected the lowest empl_rcd to supply job_title, got %v", v["job_title"])
	}
	if v["department_id"] != "173500" {
		t.Errorf("Expected the lowest empl_rcd to supply department_id, got %v", v["department_id"])
	}
	deptIDs := v["department_ids"].([]string)
	if len(deptIDs) != 2 || deptIDs[0] != "173500" || deptIDs[1] != "184200" {
		t.Errorf("Expected both department ids aggregated lowest-first, got %v", deptIDs)
	}
	emplIDs := v["umich_empl_ids"].([]string)
	if len(emplIDs) != 1 {
		t.Errorf("Expected duplicate empl ids collapsed, got %v", emplIDs)
	}
	if v["is_active"] != true {
		t.Errorf("Expected any active employment to mean active, got %v", v["is_active"])
	}
}

func TestMergeUser_SourceSystemAndPI(t *testing.T) {
	tdx := &TDXUserRow{UID: "uid-1", IsActive: boolp(false)}
	ad := &ADUserRow{SAMAccountName: "kerby", IsEnabled: boolp(false)}

	v := mergeUser("kerby", tdx, nil, nil, nil, ad, map[string]bool{"kerby": true})

	if v["source_system"] != "active_directory+tdx" {
		t.Errorf("Expected sorted plus-joined sources, got %v", v["source_system"])
	}
	if v["is_pi"] != true {
		t.Errorf("Expected PI set membership to mark is_pi, got %v", v["is_pi"])
	}
	if v["is_active"] != false {
		t.Errorf("Expected inactive everywhere to mean inactive, got %v", v["is_active"])
	}
}

func TestMergeUser_QualityPenalties(t *testing.T) {
	// AD-only record with no email, no name, no department, no title.
	ad := &ADUserRow{SAMAccountName: "kerby"}

	v := mergeUser("kerby", nil, nil, nil, nil, ad, map[string]bool{})

	// 1.00 - 0.15 email - 0.20 name - 0.10 dept - 0.10 title - 0.15 single source
	score := v["data_quality_score"].(float64)
	if score < 0.29 || score > 0.31 {
		t.Errorf("Expected quality score near 0.30, got %v", score)
	}
	flags := v["quality_flags"].([]string)
	if len(flags) != 5 {
		t.Errorf("Expected five quality flags, got %v", flags)
	}
}
