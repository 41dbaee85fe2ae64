package silver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// fieldMapping is one column of a table-driven projection: source document
// key, destination column, and the converter between them.
type fieldMapping struct {
	column string
	source string
	conv   func(map[string]any, string) any
}

func projectFields(doc map[string]any, mappings []fieldMapping, values map[string]any) {
	for _, m := range mappings {
		values[m.column] = m.conv(doc, m.source)
	}
}

var tdxUserFields = []fieldMapping{
	{"uniqname", "UserName", nullUniqname},
	{"first_name", "FirstName", nullString},
	{"last_name", "LastName", nullString},
	{"full_name", "FullName", nullString},
	{"primary_email", "PrimaryEmail", nullString},
	{"alert_email", "AlertEmail", nullString},
	{"alternate_email", "AlternateEmail", nullString},
	{"work_phone", "WorkPhone", nullString},
	{"title", "Title", nullString},
	{"is_active", "IsActive", nullBool},
	{"is_employee", "IsEmployee", nullBool},
	{"default_account_id", "DefaultAccountID", nullInt64},
	{"default_account_name", "DefaultAccountName", nullString},
	{"reports_to_uid", "ReportsToUID", nullUUIDString},
	{"reports_to_name", "ReportsToFullName", nullString},
	{"location_name", "LocationName", nullString},
	{"location_room", "LocationRoomName", nullString},
	{"organization", "Organization", nullString},
	{"organizational_id", "OrganizationalID", nullString},
	{"security_role_name", "SecurityRoleName", nullString},
	{"created_date", "CreatedDate", nullTime},
	{"last_login_date", "LastLoginDate", nullTime},
	{"attributes", "Attributes", nullJSON},
	{"applications", "Applications", nullJSON},
	{"group_ids", "GroupIDs", nullJSON},
	{"permissions", "Permissions", nullJSON},
}

func nullUniqname(doc map[string]any, key string) any {
	u := hashing.NormalizeUniqname(rawString(doc, key))
	if u == "" {
		return nil
	}
	return u
}

// nullUUIDString treats the all-zero TDX UUID sentinel as absent.
func nullUUIDString(doc map[string]any, key string) any {
	s := hashing.NormalizeUUID(rawString(doc, key))
	if s == "" {
		return nil
	}
	return s
}

// TDXUsersSpec is the upsert shape for silver.tdx_users.
var TDXUsersSpec = storage.UpsertSpec{
	Table:      "silver.tdx_users",
	KeyColumns: []string{"tdx_user_uid"},
	Columns: append(mappedColumns(tdxUserFields, "tdx_user_uid"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

func mappedColumns(mappings []fieldMapping, keys ...string) []string {
	cols := make([]string, 0, len(keys)+len(mappings))
	cols = append(cols, keys...)
	for _, m := range mappings {
		cols = append(cols, m.column)
	}
	return cols
}

type tdxUserProjector struct{}

func (tdxUserProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		uid := hashing.NormalizeUUID(rawString(e.RawData, "UID"))
		if uid == "" {
			errs = append(errs, fmt.Errorf("tdx user %s has no UID", e.ExternalID))
			continue
		}
		values := map[string]any{
			"tdx_user_uid": uid,
			"raw_id":       e.RawID,
		}
		projectFields(e.RawData, tdxUserFields, values)
		rows = append(rows, Row{Key: uid, Values: values})
	}
	return rows, errs
}

var tdxDepartmentFields = []fieldMapping{
	{"name", "Name", nullString},
	{"code", "Code", nullString},
	{"is_active", "IsActive", nullBool},
	{"parent_id", "ParentID", nullInt64},
	{"parent_name", "ParentName", nullString},
	{"manager_uid", "ManagerUID", nullUUIDString},
	{"manager_full_name", "ManagerFullName", nullString},
	{"created_date", "CreatedDate", nullTime},
	{"modified_date", "ModifiedDate", nullTime},
}

var TDXDepartmentsSpec = storage.UpsertSpec{
	Table:      "silver.tdx_departments",
	KeyColumns: []string{"tdx_department_id"},
	Columns: append(mappedColumns(tdxDepartmentFields, "tdx_department_id"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type tdxDepartmentProjector struct{}

func (tdxDepartmentProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		id := nullInt64(e.RawData, "ID")
		if id == nil {
			errs = append(errs, fmt.Errorf("tdx department %s has no ID", e.ExternalID))
			continue
		}
		values := map[string]any{
			"tdx_department_id": id,
			"raw_id":            e.RawID,
		}
		projectFields(e.RawData, tdxDepartmentFields, values)
		rows = append(rows, Row{Key: strconv.FormatInt(id.(int64), 10), Values: values})
	}
	return rows, errs
}

var tdxAssetFields = []fieldMapping{
	{"tag", "Tag", nullString},
	{"name", "Name", nullString},
	{"serial_number", "SerialNumber", nullString},
	{"status_id", "StatusID", nullInt64},
	{"status_name", "StatusName", nullString},
	{"owning_customer_uid", "OwningCustomerID", nullUUIDString},
	{"owning_customer_name", "OwningCustomerName", nullString},
	{"owning_department_id", "OwningDepartmentID", nullInt64},
	{"owning_department_name", "OwningDepartmentName", nullString},
	{"location_name", "LocationName", nullString},
	{"location_room", "LocationRoomName", nullString},
	{"manufacturer_name", "ManufacturerName", nullString},
	{"product_model_name", "ProductModelName", nullString},
	{"acquisition_date", "AcquisitionDate", nullTime},
	{"expected_replacement_date", "ExpectedReplacementDate", nullTime},
	{"created_date", "CreatedDate", nullTime},
	{"modified_date", "ModifiedDate", nullTime},
	{"attributes", "Attributes", nullJSON},
}

// assetAttributeColumns are the typed columns filled from the TDX custom
// attributes array rather than top-level fields.
var assetAttributeColumns = []string{
	"mac_address", "reserved_ip", "os_id", "os_name", "last_inventoried",
	"function_id", "function_name", "financial_owner_uid",
	"financial_owner_name", "support_group_ids", "support_groups_text",
	"memory_gb", "storage_gb", "processor_count",
}

var TDXAssetsSpec = storage.UpsertSpec{
	Table:      "silver.tdx_assets",
	KeyColumns: []string{"tdx_asset_id"},
	Columns: append(append(mappedColumns(tdxAssetFields, "tdx_asset_id"), assetAttributeColumns...),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type tdxAssetProjector struct{}

func (tdxAssetProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		id := nullInt64(e.RawData, "ID")
		if id == nil {
			errs = append(errs, fmt.Errorf("tdx asset %s has no ID", e.ExternalID))
			continue
		}
		values := map[string]any{
			"tdx_asset_id": id,
			"raw_id":       e.RawID,
		}
		projectFields(e.RawData, tdxAssetFields, values)
		extractAssetAttributes(e.RawData, values)
		rows = append(rows, Row{Key: strconv.FormatInt(id.(int64), 10), Values: values})
	}
	return rows, errs
}

// extractAssetAttributes promotes the high-value entries of the TDX custom
// attributes array to typed columns. Each entry carries ID/Name/Value/
// ValueText; choice attributes put the choice id in Value and the label in
// ValueText.
func extractAssetAttributes(doc map[string]any, values map[string]any) {
	for _, col := range assetAttributeColumns {
		values[col] = nil
	}

	attrs, ok := doc["Attributes"].([]any)
	if !ok {
		return
	}
	for _, item := range attrs {
		attr, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := strings.ToLower(rawString(attr, "Name"))
		value := rawString(attr, "Value")
		text := rawString(attr, "ValueText")
		if text == "" {
			text = value
		}

		switch {
		case strings.Contains(name, "mac address"):
			if mac := hashing.NormalizeMAC(text); mac != "" {
				values["mac_address"] = mac
			}
		case strings.Contains(name, "reserved ip"):
			values["reserved_ip"] = nilIfEmpty(text)
		case strings.Contains(name, "operating system"):
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				values["os_id"] = n
			}
			values["os_name"] = nilIfEmpty(text)
		case strings.Contains(name, "last inventoried"):
			values["last_inventoried"] = parseTime(text)
		case strings.Contains(name, "financial owner"):
			if uid := hashing.NormalizeUUID(value); uid != "" {
				values["financial_owner_uid"] = uid
			}
			values["financial_owner_name"] = nilIfEmpty(text)
		case strings.Contains(name, "support group"):
			values["support_group_ids"] = nilIfEmptyList(splitIDList(value))
			values["support_groups_text"] = nilIfEmpty(text)
		case strings.Contains(name, "function"):
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				values["function_id"] = n
			}
			values["function_name"] = nilIfEmpty(text)
		case strings.Contains(name, "memory"):
			values["memory_gb"] = nilIfEmpty(text)
		case strings.Contains(name, "storage"), strings.Contains(name, "hard drive"):
			values["storage_gb"] = nilIfEmpty(text)
		case strings.Contains(name, "processor"), strings.Contains(name, "cpu count"):
			values["processor_count"] = nilIfEmpty(text)
		}
	}
}

func splitIDList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
