package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Bulk readers over the Silver-source tables. Consolidation joins happen in
// memory, so each consolidator starts with full-table loads into typed row
// structs. Nullable columns scan into pointers; JSONB arrays scan through
// pgx's JSON codec into string slices.

type TDXUserRow struct {
	UID              string
	Uniqname         *string
	FirstName        *string
	LastName         *string
	FullName         *string
	PrimaryEmail     *string
	WorkPhone        *string
	Title            *string
	IsActive         *bool
	DefaultAccountID *int64
	DefaultAccount   *string
}

func LoadTDXUsers(ctx context.Context, pool *pgxpool.Pool) ([]TDXUserRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT tdx_user_uid, uniqname, first_name, last_name, full_name,
		       primary_email, work_phone, title, is_active,
		       default_account_id, default_account_name
		FROM silver.tdx_users`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.tdx_users: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (TDXUserRow, error) {
		var u TDXUserRow
		err := r.Scan(&u.UID, &u.Uniqname, &u.FirstName, &u.LastName, &u.FullName,
			&u.PrimaryEmail, &u.WorkPhone, &u.Title, &u.IsActive,
			&u.DefaultAccountID, &u.DefaultAccount)
		return u, err
	})
}

type UMAPIUserRow struct {
	Uniqname       string
	EmplID         *string
	EmplRcd        int
	FirstName      *string
	LastName       *string
	WorkPhone      *string
	JobTitle       *string
	JobCode        *string
	DepartmentID   *string
	DepartmentName *string
	SupervisorID   *string
	IsActive       *bool
}

func LoadUMAPIUsers(ctx context.Context, pool *pgxpool.Pool) ([]UMAPIUserRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT uniqname, empl_id, COALESCE(empl_rcd, 0), first_name, last_name,
		       work_phone, job_title, job_code, department_id, department_name,
		       supervisor_id, is_active
		FROM silver.umapi_users
		WHERE uniqname IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.umapi_users: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (UMAPIUserRow, error) {
		var u UMAPIUserRow
		err := r.Scan(&u.Uniqname, &u.EmplID, &u.EmplRcd, &u.FirstName, &u.LastName,
			&u.WorkPhone, &u.JobTitle, &u.JobCode, &u.DepartmentID, &u.DepartmentName,
			&u.SupervisorID, &u.IsActive)
		return u, err
	})
}

type MCommunityUserRow struct {
	UID             string
	DisplayName     *string
	GivenName       *string
	Surname         *string
	Mail            *string
	Title           *string
	TelephoneNumber *string
	OUAffiliations  []string
}

func LoadMCommunityUsers(ctx context.Context, pool *pgxpool.Pool) ([]MCommunityUserRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT uid, display_name, given_name, surname, mail, title,
		       telephone_number, ou_affiliations
		FROM silver.mcommunity_users`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.mcommunity_users: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (MCommunityUserRow, error) {
		var u MCommunityUserRow
		err := r.Scan(&u.UID, &u.DisplayName, &u.GivenName, &u.Surname, &u.Mail,
			&u.Title, &u.TelephoneNumber, &u.OUAffiliations)
		return u, err
	})
}

type ADUserRow struct {
	SAMAccountName string
	DisplayName    *string
	GivenName      *string
	Surname        *string
	Mail           *string
	IsEnabled      *bool
	MemberOf       []string
}

func LoadADUsers(ctx context.Context, pool *pgxpool.Pool) ([]ADUserRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT sam_account_name, display_name, given_name, surname, mail,
		       is_enabled, member_of
		FROM silver.ad_users`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.ad_users: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (ADUserRow, error) {
		var u ADUserRow
		err := r.Scan(&u.SAMAccountName, &u.DisplayName, &u.GivenName, &u.Surname,
			&u.Mail, &u.IsEnabled, &u.MemberOf)
		return u, err
	})
}

type TDXDepartmentRow struct {
	ID              int64
	Name            *string
	Code            *string
	IsActive        *bool
	ParentID        *int64
	ManagerUID      *string
	ManagerFullName *string
}

func LoadTDXDepartments(ctx context.Context, pool *pgxpool.Pool) ([]TDXDepartmentRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT tdx_department_id, name, code, is_active, parent_id,
		       manager_uid, manager_full_name
		FROM silver.tdx_departments`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.tdx_departments: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (TDXDepartmentRow, error) {
		var d TDXDepartmentRow
		err := r.Scan(&d.ID, &d.Name, &d.Code, &d.IsActive, &d.ParentID,
			&d.ManagerUID, &d.ManagerFullName)
		return d, err
	})
}

type UMAPIDepartmentRow struct {
	DeptID          string
	DeptDescription *string
	Campus          *string
	College         *string
	VPArea          *string
}

func LoadUMAPIDepartments(ctx context.Context, pool *pgxpool.Pool) ([]UMAPIDepartmentRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT dept_id, dept_description, campus, college, vp_area
		FROM silver.umapi_departments`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.umapi_departments: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (UMAPIDepartmentRow, error) {
		var d UMAPIDepartmentRow
		err := r.Scan(&d.DeptID, &d.DeptDescription, &d.Campus, &d.College, &d.VPArea)
		return d, err
	})
}

type ADGroupRow struct {
	SAMAccountName    string
	DistinguishedName *string
	CN                *string
	Description       *string
	GroupEmail        *string
	ManagedBy         *string
	Members           []string
}

func LoadADGroups(ctx context.Context, pool *pgxpool.Pool) ([]ADGroupRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT sam_account_name, distinguished_name, cn, description,
		       group_email, managed_by, members
		FROM silver.ad_groups`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.ad_groups: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (ADGroupRow, error) {
		var g ADGroupRow
		err := r.Scan(&g.SAMAccountName, &g.DistinguishedName, &g.CN, &g.Description,
			&g.GroupEmail, &g.ManagedBy, &g.Members)
		return g, err
	})
}

type MCommunityGroupRow struct {
	GroupEmail        string
	DistinguishedName *string
	CN                *string
	Description       *string
	Members           []string
	DirectMembers     []string
	Owners            []string
}

func LoadMCommunityGroups(ctx context.Context, pool *pgxpool.Pool) ([]MCommunityGroupRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT group_email, distinguished_name, cn, description,
		       members, direct_members, owners
		FROM silver.mcommunity_groups`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.mcommunity_groups: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (MCommunityGroupRow, error) {
		var g MCommunityGroupRow
		err := r.Scan(&g.GroupEmail, &g.DistinguishedName, &g.CN, &g.Description,
			&g.Members, &g.DirectMembers, &g.Owners)
		return g, err
	})
}

type TDXAssetRow struct {
	ID                 int64
	Tag                *string
	Name               *string
	SerialNumber       *string
	StatusName         *string
	OwningCustomerUID  *string
	OwningDepartmentID *int64
	LocationName       *string
	LocationRoom       *string
	ManufacturerName   *string
	ProductModelName   *string
	MACAddress         *string
	ReservedIP         *string
	OSName             *string
	LastInventoried    *time.Time
	FunctionName       *string
	FinancialOwnerUID  *string
	MemoryGB           *string
	StorageGB          *string
	ProcessorCount     *string
	ModifiedDate       *time.Time
	Attributes         []map[string]any
}

func LoadTDXAssets(ctx context.Context, pool *pgxpool.Pool) ([]TDXAssetRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT tdx_asset_id, tag, name, serial_number, status_name,
		       owning_customer_uid, owning_department_id, location_name,
		       location_room, manufacturer_name, product_model_name,
		       mac_address, reserved_ip, os_name, last_inventoried,
		       function_name, financial_owner_uid, memory_gb, storage_gb,
		       processor_count, modified_date, attributes
		FROM silver.tdx_assets`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.tdx_assets: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (TDXAssetRow, error) {
		var a TDXAssetRow
		err := r.Scan(&a.ID, &a.Tag, &a.Name, &a.SerialNumber, &a.StatusName,
			&a.OwningCustomerUID, &a.OwningDepartmentID, &a.LocationName,
			&a.LocationRoom, &a.ManufacturerName, &a.ProductModelName,
			&a.MACAddress, &a.ReservedIP, &a.OSName, &a.LastInventoried,
			&a.FunctionName, &a.FinancialOwnerUID, &a.MemoryGB, &a.StorageGB,
			&a.ProcessorCount, &a.ModifiedDate, &a.Attributes)
		return a, err
	})
}

type ADComputerRow struct {
	ComputerName      string
	DistinguishedName *string
	Description       *string
	OperatingSystem   *string
	OSVersion         *string
	IsEnabled         *bool
	LastLogon         *time.Time
	WhenChanged       *time.Time
	MemberOf          []string
	OUFullPath        []string
	OUDepth           *int
	ExtractedUniqname *string
}

func LoadADComputers(ctx context.Context, pool *pgxpool.Pool) ([]ADComputerRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT computer_name, distinguished_name, description, operating_system,
		       operating_system_version, is_enabled, last_logon, when_changed,
		       member_of, ou_full_path, ou_depth, extracted_uniqname
		FROM silver.ad_computers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.ad_computers: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (ADComputerRow, error) {
		var c ADComputerRow
		err := r.Scan(&c.ComputerName, &c.DistinguishedName, &c.Description,
			&c.OperatingSystem, &c.OSVersion, &c.IsEnabled, &c.LastLogon,
			&c.WhenChanged, &c.MemberOf, &c.OUFullPath, &c.OUDepth,
			&c.ExtractedUniqname)
		return c, err
	})
}

type KeyClientComputerRow struct {
	ComputerKey   string
	ComputerName  *string
	SerialNumber  *string
	PrimaryMAC    *string
	MACAddresses  []string
	IPAddresses   []string
	LastUser      *string
	OSName        *string
	OSVersion     *string
	Manufacturer  *string
	Model         *string
	MemoryMB      *int64
	LastSession   *time.Time
	LastInventory *time.Time
}

func LoadKeyClientComputers(ctx context.Context, pool *pgxpool.Pool) ([]KeyClientComputerRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT computer_key, computer_name, serial_number, primary_mac_address,
		       mac_addresses, ip_addresses, last_user, os_name, os_version,
		       manufacturer, model, memory_mb, last_session, last_inventory
		FROM silver.key_client_computers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.key_client_computers: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (KeyClientComputerRow, error) {
		var c KeyClientComputerRow
		err := r.Scan(&c.ComputerKey, &c.ComputerName, &c.SerialNumber, &c.PrimaryMAC,
			&c.MACAddresses, &c.IPAddresses, &c.LastUser, &c.OSName, &c.OSVersion,
			&c.Manufacturer, &c.Model, &c.MemoryMB, &c.LastSession, &c.LastInventory)
		return c, err
	})
}

type LabAwardRow struct {
	AwardKey         string
	AwardID          *string
	AwardTitle       *string
	PersonUniqname   *string
	PersonName       *string
	PersonRole       *string
	PersonApptDeptID *string
	ProjectEnd       *time.Time
}

func LoadLabAwards(ctx context.Context, pool *pgxpool.Pool) ([]LabAwardRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT award_key, award_id, award_title, person_uniqname, person_name,
		       person_role, person_appt_dept_id, project_end
		FROM silver.lab_awards`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.lab_awards: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (LabAwardRow, error) {
		var a LabAwardRow
		err := r.Scan(&a.AwardKey, &a.AwardID, &a.AwardTitle, &a.PersonUniqname,
			&a.PersonName, &a.PersonRole, &a.PersonApptDeptID, &a.ProjectEnd)
		return a, err
	})
}

type LabRow struct {
	LabID      string
	LabName    *string
	PIUniqname *string
	ADOuDN     *string
	HasADOu    bool
}

func LoadLabs(ctx context.Context, pool *pgxpool.Pool) ([]LabRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT lab_id, lab_name, pi_uniqname, ad_ou_dn, has_ad_ou
		FROM silver.labs`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.labs: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (LabRow, error) {
		var l LabRow
		err := r.Scan(&l.LabID, &l.LabName, &l.PIUniqname, &l.ADOuDN, &l.HasADOu)
		return l, err
	})
}

type LabMemberRow struct {
	LabID          string
	MemberUniqname string
	MemberRole     *string
}

func LoadLabMembers(ctx context.Context, pool *pgxpool.Pool) ([]LabMemberRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT lab_id, member_uniqname, member_role
		FROM silver.lab_members`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.lab_members: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (LabMemberRow, error) {
		var m LabMemberRow
		err := r.Scan(&m.LabID, &m.MemberUniqname, &m.MemberRole)
		return m, err
	})
}

type ConsolidatedGroupRow struct {
	GroupID           string
	DistinguishedName *string
	SourceSystem      string
	Members           []string
	DirectMembers     []string
	Owners            []string
}

func LoadConsolidatedGroups(ctx context.Context, pool *pgxpool.Pool) ([]ConsolidatedGroupRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT group_id, distinguished_name, source_system, members,
		       direct_members, owners
		FROM silver.groups`)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver.groups: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (ConsolidatedGroupRow, error) {
		var g ConsolidatedGroupRow
		err := r.Scan(&g.GroupID, &g.DistinguishedName, &g.SourceSystem,
			&g.Members, &g.DirectMembers, &g.Owners)
		return g, err
	})
}

// TDXUserUIDMap maps tdx_user_uid → consolidated uniqname, used to resolve
// asset owners with FK discipline against silver.users.
func TDXUserUIDMap(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT tdx_user_uid, uniqname FROM silver.users
		WHERE tdx_user_uid IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tdx uid map: %w", err)
	}
	defer rows.Close()

	m := map[string]string{}
	for rows.Next() {
		var uid, uniqname string
		if err := rows.Scan(&uid, &uniqname); err != nil {
			return nil, fmt.Errorf("failed to scan tdx uid map: %w", err)
		}
		m[uid] = uniqname
	}
	return m, rows.Err()
}

// KnownUniqnames returns the set of consolidated user keys.
func KnownUniqnames(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT uniqname FROM silver.users`)
	if err != nil {
		return nil, fmt.Errorf("failed to load known uniqnames: %w", err)
	}
	defer rows.Close()

	set := map[string]bool{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan uniqname: %w", err)
		}
		set[u] = true
	}
	return set, rows.Err()
}

func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
