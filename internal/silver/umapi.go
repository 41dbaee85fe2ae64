package silver

import (
	"fmt"
	"strconv"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// Identity-API employment records keep one Silver row per empl_rcd;
// the users consolidator aggregates them later.

var umapiUserFields = []fieldMapping{
	{"uniqname", "Uniqname", nullUniqname},
	{"empl_id", "EmplId", nullString},
	{"empl_rcd", "EmplRcd", nullInt},
	{"first_name", "FirstName", nullString},
	{"last_name", "LastName", nullString},
	{"work_phone", "WorkPhone", nullString},
	{"job_title", "JobTitle", nullString},
	{"job_code", "JobCode", nullString},
	{"department_id", "DeptId", nullString},
	{"department_name", "DeptDescription", nullString},
	{"supervisor_id", "SupervisorId", nullString},
	{"is_active", "EmplStatus", nullBool},
}

var UMAPIUsersSpec = storage.UpsertSpec{
	Table:      "silver.umapi_users",
	KeyColumns: []string{"external_id"},
	Columns: append(mappedColumns(umapiUserFields, "external_id"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type umapiUserProjector struct{}

func (umapiUserProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		uniqname := hashing.NormalizeUniqname(rawString(e.RawData, "Uniqname"))
		if uniqname == "" {
			errs = append(errs, fmt.Errorf("employment record %s has no uniqname", e.ExternalID))
			continue
		}
		emplRcd := 0
		if v := nullInt(e.RawData, "EmplRcd"); v != nil {
			emplRcd = v.(int)
		}
		externalID := uniqname + "-" + strconv.Itoa(emplRcd)

		values := map[string]any{
			"external_id": externalID,
			"raw_id":      e.RawID,
		}
		projectFields(e.RawData, umapiUserFields, values)
		rows = append(rows, Row{Key: externalID, Values: values})
	}
	return rows, errs
}

var umapiDepartmentFields = []fieldMapping{
	{"dept_description", "DeptDescription", nullString},
	{"dept_group", "DeptGroup", nullString},
	{"dept_group_description", "DeptGroupDescription", nullString},
	{"campus", "DeptCampus", nullString},
	{"college", "DeptGroupDescription", nullString},
	{"vp_area", "DeptGroupVPAreaDescription", nullString},
}

var UMAPIDepartmentsSpec = storage.UpsertSpec{
	Table:      "silver.umapi_departments",
	KeyColumns: []string{"dept_id"},
	Columns: append(mappedColumns(umapiDepartmentFields, "dept_id"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type umapiDepartmentProjector struct{}

func (umapiDepartmentProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		deptID := rawString(e.RawData, "DeptId")
		if deptID == "" {
			errs = append(errs, fmt.Errorf("identity-api department %s has no DeptId", e.ExternalID))
			continue
		}
		values := map[string]any{
			"dept_id": deptID,
			"raw_id":  e.RawID,
		}
		projectFields(e.RawData, umapiDepartmentFields, values)
		rows = append(rows, Row{Key: deptID, Values: values})
	}
	return rows, errs
}
