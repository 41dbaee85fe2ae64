package silver

import (
	"testing"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func TestTDXUserProjector_ProjectsAndNormalizes(t *testing.T) {
	e := &storage.RawEntity{
		RawID:      7,
		ExternalID: "ABCDEF01-1234-1234-1234-123456789012",
		RawData: map[string]any{
			"UID":          "ABCDEF01-1234-1234-1234-123456789012",
			"UserName":     "KERBY@umich.edu",
			"FirstName":    "Kerby",
			"LastName":     "Smith",
			"IsActive":     true,
			"ReportsToUID": hashing.NullUUID,
			"LastLoginDate": "0001-01-01T00:00:00Z",
		},
	}

	rows, errs := tdxUserProjector{}.Project([]*storage.RawEntity{e})
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got: %v", errs)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected one row, got %d", len(rows))
	}

	v := rows[0].Values
	if v["uniqname"] != "kerby" {
		t.Errorf("Expected normalized uniqname 'kerby', got %v", v["uniqname"])
	}
	if v["reports_to_uid"] != nil {
		t.Errorf("Expected the null UUID sentinel to project as nil, got %v", v["reports_to_uid"])
	}
	if v["last_login_date"] != nil {
		t.Errorf("Expected the zero date to project as nil, got %v", v["last_login_date"])
	}
	if v["is_active"] != true {
		t.Errorf("Expected is_active true, got %v", v["is_active"])
	}
	if v["raw_id"] != int64(7) {
		t.Errorf("Expected raw_id 7, got %v", v["raw_id"])
	}
}

func TestTDXUserProjector_RejectsMissingUID(t *testing.T) {
	e := &storage.RawEntity{RawID: 1, ExternalID: "x", RawData: map[string]any{"UserName": "kerby"}}
	rows, errs := tdxUserProjector{}.Project([]*storage.RawEntity{e})
	if len(rows) != 0 {
		t.Errorf("Expected no rows without a UID, got %d", len(rows))
	}
	if len(errs) != 1 {
		t.Errorf("Expected one error, got %d", len(errs))
	}
}

func TestExtractAssetAttributes(t *testing.T) {
	doc := map[string]any{
		"Attributes": []any{
			map[string]any{"Name": "MAC Address", "Value": "aa:bb:cc:dd:ee:ff"},
			map[string]any{"Name": "Operating System", "Value": "42", "ValueText": "Windows 11"},
			map[string]any{"Name": "Financial Owner", "Value": "ABCDEF01-1234-1234-1234-123456789012", "ValueText": "Kerby Smith"},
			map[string]any{"Name": "Asset Function", "Value": "3", "ValueText": "Research"},
			map[string]any{"Name": "Support Group(s)", "Value": "10, 20", "ValueText": "LSA TS, Chem IT"},
			map[string]any{"Name": "Last Inventoried", "ValueText": "2024-03-01"},
		},
	}

	values := map[string]any{}
	extractAssetAttributes(doc, values)

	if values["mac_address"] != "AABBCCDDEEFF" {
		t.Errorf("Expected normalized MAC, got %v", values["mac_address"])
	}
	if values["os_id"] != int64(42) || values["os_name"] != "Windows 11" {
		t.Errorf("Expected os id/name 42/'Windows 11', got %v/%v", values["os_id"], values["os_name"])
	}
	if values["financial_owner_name"] != "Kerby Smith" {
		t.Errorf("Expected financial owner name, got %v", values["financial_owner_name"])
	}
	if values["function_id"] != int64(3) || values["function_name"] != "Research" {
		t.Errorf("Expected function id/name 3/'Research', got %v/%v", values["function_id"], values["function_name"])
	}
	groups, ok := values["support_group_ids"].([]string)
	if !ok || len(groups) != 2 || groups[0] != "10" || groups[1] != "20" {
		t.Errorf("Expected support group ids [10 20], got %v", values["support_group_ids"])
	}
	if values["last_inventoried"] == nil {
		t.Errorf("Expected last_inventoried parsed, got nil")
	}
	// Untouched typed columns stay nil so the upsert writes NULL.
	if values["reserved_ip"] != nil {
		t.Errorf("Expected reserved_ip nil, got %v", values["reserved_ip"])
	}
}

func TestExtractAssetAttributes_FinancialOwnerBeforeFunction(t *testing.T) {
	// "Financial Owner Function" style names must not be swallowed by the
	// generic "function" match.
	doc := map[string]any{
		"Attributes": []any{
			map[string]any{"Name": "Financial Owner", "ValueText": "Kerby Smith"},
		},
	}
	values := map[string]any{}
	extractAssetAttributes(doc, values)
	if values["financial_owner_name"] != "Kerby Smith" {
		t.Errorf("Expected financial owner extracted, got %v", values["financial_owner_name"])
	}
	if values["function_name"] != nil {
		t.Errorf("Expected function_name untouched, got %v", values["function_name"])
	}
}
