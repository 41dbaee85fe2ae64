package silver

import (
	"testing"
	"time"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

func nicEntity(rawID int64, doc map[string]any) *storage.RawEntity {
	return &storage.RawEntity{
		RawID:        rawID,
		EntityType:   "computer",
		SourceSystem: "key_client",
		ExternalID:   doc["MAC Address"].(string),
		RawData:      doc,
	}
}

func TestKeyClientProjector_FoldsNICsIntoOneRow(t *testing.T) {
	entities := []*storage.RawEntity{
		nicEntity(1, map[string]any{
			"Name":         "CHEM-KERBY01",
			"OEM SN":       "SN123",
			"MAC Address":  "aa:bb:cc:00:00:01",
			"IP Address":   "10.0.0.1",
			"Last Session": "2024-03-01T10:00:00Z",
			"Last User":    "kerby",
			"OS":           "Windows 11",
			"Base Audit":   "2021-06-01",
		}),
		nicEntity(2, map[string]any{
			"Name":         "CHEM-KERBY01",
			"OEM SN":       "SN123",
			"MAC Address":  "aa:bb:cc:00:00:02",
			"IP Address":   "10.0.0.2",
			"Last Session": "2024-05-01T10:00:00Z",
			"Last User":    "alice",
			"OS":           "Windows 11",
			"Base Audit":   "2022-01-01",
		}),
	}

	rows, errs := keyClientProjector{}.Project(entities)
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got: %v", errs)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected one folded row, got %d", len(rows))
	}

	v := rows[0].Values
	if v["nic_count"] != 2 {
		t.Errorf("Expected nic_count 2, got %v", v["nic_count"])
	}
	// The May NIC is more recent, so it supplies the scalar fields.
	if v["last_user"] != "alice" {
		t.Errorf("Expected last_user from the most recent NIC, got %v", v["last_user"])
	}
	if v["primary_mac_address"] != "AABBCC000002" {
		t.Errorf("Expected the most recent MAC first, got %v", v["primary_mac_address"])
	}

	macs := v["mac_addresses"].([]string)
	if len(macs) != 2 || macs[0] != "AABBCC000002" || macs[1] != "AABBCC000001" {
		t.Errorf("Expected MACs ordered most-recent-first, got %v", macs)
	}

	if got := v["last_session"].(time.Time); got.Month() != time.May {
		t.Errorf("Expected last_session to be the MAX across NICs, got %v", got)
	}
	if got := v["base_audit"].(time.Time); got.Year() != 2021 {
		t.Errorf("Expected base_audit to be the MIN across NICs, got %v", got)
	}

	rawIDs := v["raw_ids"].([]int64)
	if len(rawIDs) != 2 {
		t.Errorf("Expected both contributing raw_ids, got %v", rawIDs)
	}
	if v["raw_id"] != int64(2) {
		t.Errorf("Expected raw_id from the most recent NIC, got %v", v["raw_id"])
	}
}

func TestKeyClientProjector_SeparateComputersStaySeparate(t *testing.T) {
	entities := []*storage.RawEntity{
		nicEntity(1, map[string]any{"Name": "HOST-A", "OEM SN": "SN1", "MAC Address": "aa:00:00:00:00:01"}),
		nicEntity(2, map[string]any{"Name": "HOST-B", "OEM SN": "SN2", "MAC Address": "aa:00:00:00:00:02"}),
	}

	rows, errs := keyClientProjector{}.Project(entities)
	if len(errs) != 0 {
		t.Fatalf("Expected no errors, got: %v", errs)
	}
	if len(rows) != 2 {
		t.Errorf("Expected two rows for two computers, got %d", len(rows))
	}
}

func TestKeyClientProjector_RejectsRecordWithoutIdentity(t *testing.T) {
	entities := []*storage.RawEntity{
		nicEntity(1, map[string]any{"Name": "", "OEM SN": "", "MAC Address": "aa:00:00:00:00:01"}),
	}

	rows, errs := keyClientProjector{}.Project(entities)
	if len(rows) != 0 {
		t.Errorf("Expected no rows for an unidentifiable record, got %d", len(rows))
	}
	if len(errs) != 1 {
		t.Errorf("Expected one error, got %d", len(errs))
	}
}
