package silver

import (
	"fmt"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/sources"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

var labAwardFields = []fieldMapping{
	{"award_id", "AwardID", nullString},
	{"award_title", "AwardTitle", nullString},
	{"person_uniqname", "PersonUniqname", nullUniqname},
	{"person_name", "PersonName", nullString},
	{"person_role", "PersonRole", nullString},
	{"person_appt_dept_id", "PersonApptDeptID", nullString},
	{"person_appt_dept", "PersonApptDept", nullString},
	{"project_start", "ProjectStartDate", nullTime},
	{"project_end", "ProjectEndDate", nullTime},
	{"direct_amount", "DirectAmount", nullCurrency},
}

func nullCurrency(doc map[string]any, key string) any {
	cleaned := sources.CleanCurrency(rawString(doc, key))
	if cleaned == "" {
		return nil
	}
	return cleaned
}

var LabAwardsSpec = storage.UpsertSpec{
	Table:      "silver.lab_awards",
	KeyColumns: []string{"award_key"},
	Columns: append(mappedColumns(labAwardFields, "award_key"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type labAwardProjector struct{}

func (labAwardProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		// The composite external_id (AwardID-Uniqname-DeptID) built at
		// ingestion is the natural key; AwardID alone repeats across
		// person/department rows.
		if rawString(e.RawData, "AwardID") == "" {
			errs = append(errs, fmt.Errorf("award row %s has no AwardID", e.ExternalID))
			continue
		}
		key := hashing.CleanString(e.ExternalID)
		values := map[string]any{
			"award_key": key,
			"raw_id":    e.RawID,
		}
		projectFields(e.RawData, labAwardFields, values)
		rows = append(rows, Row{Key: key, Values: values})
	}
	return rows, errs
}
