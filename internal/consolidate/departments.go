package consolidate

import (
	"context"
	"sort"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// DepartmentsSpec is the upsert shape for silver.departments.
var DepartmentsSpec = storage.UpsertSpec{
	Table:      "silver.departments",
	KeyColumns: []string{"department_id"},
	Columns: []string{
		"department_id", "dept_code", "dept_description", "campus", "college",
		"vp_area", "hierarchy_path", "tdx_department_id", "manager_uid",
		"manager_full_name", "parent_tdx_id", "is_active",
		"source_system", "data_quality_score", "quality_flags",
		"entity_hash", "ingestion_run_id",
	},
}

// ConsolidateDepartments merges TDX departments (hierarchy and manager) with
// identity-API departments (campus/college/VP area). The identity-API DeptID
// is the canonical key; TDX departments match on their code and fall back to
// their own id when the code is unknown upstream.
func (r *Runner) ConsolidateDepartments(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "departments", func(ctx context.Context, stats *Stats) error {
		tdxDepts, err := LoadTDXDepartments(ctx, r.Pool)
		if err != nil {
			return err
		}
		umapiDepts, err := LoadUMAPIDepartments(ctx, r.Pool)
		if err != nil {
			return err
		}

		tdxByCode := map[string]*TDXDepartmentRow{}
		for i := range tdxDepts {
			if code := strings.TrimSpace(textOf(tdxDepts[i].Code)); code != "" {
				tdxByCode[code] = &tdxDepts[i]
			}
		}

		matched := map[int64]bool{}
		var rows []row

		for i := range umapiDepts {
			um := &umapiDepts[i]
			tdx := tdxByCode[um.DeptID]
			if tdx != nil {
				matched[tdx.ID] = true
			}
			rows = append(rows, row{key: um.DeptID, values: mergeDepartment(um.DeptID, um, tdx)})
		}

		// TDX departments with no identity-API counterpart keep their TDX id
		// as the canonical key.
		for i := range tdxDepts {
			tdx := &tdxDepts[i]
			if matched[tdx.ID] {
				continue
			}
			key := "tdx-" + int64Text(tdx.ID)
			if code := strings.TrimSpace(textOf(tdx.Code)); code != "" {
				key = code
			}
			rows = append(rows, row{key: key, values: mergeDepartment(key, nil, tdx)})
		}

		sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
		return r.upsertRows(ctx, DepartmentsSpec, "department_id", rows, stats)
	})
}

func mergeDepartment(key string, um *UMAPIDepartmentRow, tdx *TDXDepartmentRow) map[string]any {
	values := map[string]any{
		"department_id":     key,
		"dept_code":         nil,
		"dept_description":  nil,
		"campus":            nil,
		"college":           nil,
		"vp_area":           nil,
		"hierarchy_path":    nil,
		"tdx_department_id": nil,
		"manager_uid":       nil,
		"manager_full_name": nil,
		"parent_tdx_id":     nil,
		"is_active":         nil,
	}

	var sourceNames []string
	var campus, vpArea, college, description string

	if um != nil {
		sourceNames = append(sourceNames, bronze.SourceUMAPI)
		values["dept_code"] = firstNonEmpty(um.DeptID)
		campus = textOf(um.Campus)
		college = textOf(um.College)
		vpArea = textOf(um.VPArea)
		description = textOf(um.DeptDescription)
		values["campus"] = firstNonEmpty(campus)
		values["college"] = firstNonEmpty(college)
		values["vp_area"] = firstNonEmpty(vpArea)
		values["dept_description"] = firstNonEmpty(description)
	}
	if tdx != nil {
		sourceNames = append(sourceNames, bronze.SourceTDX)
		values["tdx_department_id"] = tdx.ID
		if values["dept_code"] == nil {
			values["dept_code"] = firstNonEmpty(textOf(tdx.Code))
		}
		if values["dept_description"] == nil {
			values["dept_description"] = firstNonEmpty(textOf(tdx.Name))
			description = textOf(tdx.Name)
		}
		values["manager_uid"] = firstNonEmpty(textOf(tdx.ManagerUID))
		values["manager_full_name"] = firstNonEmpty(textOf(tdx.ManagerFullName))
		if tdx.ParentID != nil {
			values["parent_tdx_id"] = *tdx.ParentID
		}
		if tdx.IsActive != nil {
			values["is_active"] = *tdx.IsActive
		}
	}

	var pathParts []string
	for _, part := range []string{campus, vpArea, college, description} {
		if part != "" {
			pathParts = append(pathParts, part)
		}
	}
	if len(pathParts) > 0 {
		values["hierarchy_path"] = strings.Join(pathParts, "/")
	}

	sort.Strings(sourceNames)
	values["source_system"] = strings.Join(sourceNames, "+")

	q := newQualityScore()
	if values["dept_code"] == nil {
		q.penalize(0.30, "missing_dept_code")
	}
	if values["dept_description"] == nil {
		q.penalize(0.30, "missing_description")
	}
	if len(sourceNames) == 1 {
		q.penalize(0.15, "single_source")
	}
	values["data_quality_score"] = q.Score()
	values["quality_flags"] = q.Flags()

	return values
}
