package bronze

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/sources"
)

// Source system names as recorded in Bronze and the run ledger.
const (
	SourceTDX        = "tdx"
	SourceAD         = "active_directory"
	SourceMCommunity = "mcommunity_ldap"
	SourceUMAPI      = "umich_api"
	SourceKeyClient  = "key_client"
	SourceLabAwards  = "lab_awards"
)

// Entity type names.
const (
	EntityUser       = "user"
	EntityGroup      = "group"
	EntityDepartment = "department"
	EntityComputer   = "computer"
	EntityAsset      = "asset"
	EntityLabAward   = "lab_award"
	EntityEmployment = "employment"
)

// Registry holds the wired Definition for every (source, entity) the
// pipeline ingests, keyed "<source>/<entity>".
type Registry struct {
	defs map[string]Definition
}

// NewRegistry wires source clients into ingestion definitions. The pool is
// needed only by the umapi employment lister, which walks known uniqnames.
func NewRegistry(cfg *config.Config, pool *pgxpool.Pool) *Registry {
	tdx := sources.NewTDXClient(&cfg.Sources.TDX)
	ad := sources.NewLDAPClient(&cfg.Sources.AD)
	mcom := sources.NewLDAPClient(&cfg.Sources.MCommunity.LDAPConfig)
	umapi := sources.NewUMAPIClient(&cfg.Sources.UMAPI)
	key := sources.NewKeyClient(&cfg.Sources.KeyClient)
	awards := sources.NewCSVSource(cfg.Sources.LabAwards.Glob)

	mcomUserFilter := "(objectClass=umichPerson)"
	if !cfg.Sources.MCommunity.IncludeAlumniOnly {
		mcomUserFilter = "(&(objectClass=umichPerson)(!(umichInstRoles=AlumniAA)))"
	}

	r := &Registry{defs: map[string]Definition{}}

	r.add(Definition{
		SourceSystem:    SourceTDX,
		EntityType:      EntityUser,
		IngestionMethod: "tdx_api",
		IngestionSource: "/api/people/search",
		BasicHashFields: []string{
			"UID", "UserName", "FirstName", "LastName", "FullName",
			"PrimaryEmail", "AlertEmail", "AlternateEmail", "WorkPhone",
			"Title", "IsActive", "IsEmployee", "DefaultAccountID",
			"DefaultAccountName", "ReportsToUID", "ReportsToFullName",
			"LocationName", "LocationRoomName", "Organization",
			"OrganizationalID", "SecurityRoleName",
		},
		DetailHashFields: []string{"Attributes", "Applications", "GroupIDs", "Permissions"},
		Lister:           sources.ListerFunc(tdx.SearchUsers),
		Detail:           detailFunc(tdx.UserDetail),
	})

	r.add(Definition{
		SourceSystem:    SourceTDX,
		EntityType:      EntityDepartment,
		IngestionMethod: "tdx_api",
		IngestionSource: "/api/accounts/search",
		BasicHashFields: []string{
			"ID", "Name", "Code", "IsActive", "ParentID", "ParentName",
			"ManagerUID", "ManagerFullName",
		},
		Lister: sources.ListerFunc(tdx.SearchDepartments),
	})

	r.add(Definition{
		SourceSystem:    SourceTDX,
		EntityType:      EntityAsset,
		IngestionMethod: "tdx_api",
		IngestionSource: "/api/assets/search",
		BasicHashFields: []string{
			"ID", "Tag", "Name", "SerialNumber", "StatusID", "StatusName",
			"OwningCustomerID", "OwningCustomerName", "OwningDepartmentID",
			"OwningDepartmentName", "LocationName", "LocationRoomName",
			"ManufacturerName", "ProductModelName",
		},
		DetailHashFields: []string{"Attributes"},
		Lister:           sources.ListerFunc(tdx.SearchAssets),
		Detail:           detailFunc(tdx.AssetDetail),
	})

	r.add(Definition{
		SourceSystem:    SourceAD,
		EntityType:      EntityUser,
		IngestionMethod: "ldap_search",
		IngestionSource: cfg.Sources.AD.URL,
		BasicHashFields: []string{
			"distinguishedName", "sAMAccountName", "cn", "displayName",
			"givenName", "sn", "mail", "description", "userPrincipalName",
			"employeeID", "userAccountControl", "whenChanged", "memberOf",
			"proxyAddresses",
		},
		Lister: ldapLister(ad, "", "(&(objectCategory=person)(objectClass=user))",
			[]string{"sAMAccountName", "cn", "displayName", "givenName", "sn",
				"mail", "description", "userPrincipalName", "employeeID",
				"userAccountControl", "whenCreated", "whenChanged", "lastLogonTimestamp",
				"memberOf", "proxyAddresses"},
			"sAMAccountName", "whenChanged"),
	})

	r.add(Definition{
		SourceSystem:    SourceAD,
		EntityType:      EntityGroup,
		IngestionMethod: "ldap_search",
		IngestionSource: cfg.Sources.AD.URL,
		BasicHashFields: []string{
			"distinguishedName", "sAMAccountName", "cn", "description",
			"mail", "managedBy", "member", "memberOf", "whenChanged",
		},
		Lister: ldapLister(ad, "", "(objectClass=group)",
			[]string{"sAMAccountName", "cn", "description", "mail", "managedBy",
				"member", "memberOf", "whenCreated", "whenChanged"},
			"sAMAccountName", "whenChanged"),
	})

	r.add(Definition{
		SourceSystem:    SourceAD,
		EntityType:      EntityComputer,
		IngestionMethod: "ldap_search",
		IngestionSource: cfg.Sources.AD.URL,
		BasicHashFields: []string{
			"distinguishedName", "cn", "dNSHostName", "description",
			"operatingSystem", "operatingSystemVersion", "userAccountControl",
			"whenChanged", "memberOf", "servicePrincipalName",
		},
		Lister: ldapLister(ad, "", "(objectClass=computer)",
			[]string{"cn", "dNSHostName", "description", "operatingSystem",
				"operatingSystemVersion", "userAccountControl", "whenCreated",
				"whenChanged", "lastLogonTimestamp", "memberOf", "servicePrincipalName"},
			"cn", "whenChanged"),
	})

	r.add(Definition{
		SourceSystem:    SourceMCommunity,
		EntityType:      EntityUser,
		IngestionMethod: "ldap_search",
		IngestionSource: cfg.Sources.MCommunity.URL,
		BasicHashFields: []string{
			"uid", "cn", "displayName", "givenName", "sn", "mail", "title",
			"telephoneNumber", "ou",
		},
		Lister: ldapLister(mcom, "", mcomUserFilter,
			[]string{"uid", "cn", "displayName", "givenName", "sn", "mail",
				"title", "telephoneNumber", "ou"},
			"uid", ""),
	})

	r.add(Definition{
		SourceSystem:    SourceMCommunity,
		EntityType:      EntityGroup,
		IngestionMethod: "ldap_search",
		IngestionSource: cfg.Sources.MCommunity.URL,
		BasicHashFields: []string{
			"cn", "umichGroupEmail", "umichDescription", "member",
			"umichDirectMember", "owner",
		},
		Lister: ldapLister(mcom, "ou=User Groups,ou=Groups,dc=umich,dc=edu", "(objectClass=rfc822MailGroup)",
			[]string{"cn", "umichGroupEmail", "umichDescription", "member",
				"umichDirectMember", "owner"},
			"umichGroupEmail", ""),
	})

	r.add(Definition{
		SourceSystem:    SourceUMAPI,
		EntityType:      EntityDepartment,
		IngestionMethod: "umapi_rest",
		IngestionSource: "/Curriculum/Departments/v2/DeptData",
		BasicHashFields: []string{
			"DeptId", "DeptDescription", "DeptGroup", "DeptGroupDescription",
			"DeptCampus", "DeptVPArea", "DeptGroupVPAreaDescription",
		},
		Lister: sources.ListerFunc(umapi.ListDepartments),
	})

	r.add(Definition{
		SourceSystem:    SourceUMAPI,
		EntityType:      EntityEmployment,
		IngestionMethod: "umapi_rest",
		IngestionSource: "/Employee/EmpData/v1",
		BasicHashFields: []string{
			"Uniqname", "EmplId", "EmplRcd", "FirstName", "LastName",
			"WorkPhone", "JobTitle", "JobCode", "DeptId", "DeptDescription",
			"SupervisorId", "EmplStatus",
		},
		Lister: &employmentLister{umapi: umapi, pool: pool},
	})

	r.add(Definition{
		SourceSystem:    SourceKeyClient,
		EntityType:      EntityComputer,
		IngestionMethod: "key_agent",
		IngestionSource: cfg.Sources.KeyClient.BaseURL,
		BasicHashFields: []string{
			"Name", "OEM SN", "MAC Address", "IP Address", "Last User",
			"OS", "OS Version", "Manufacturer", "Model", "Memory",
			"Last Session", "Last Inventory", "Base Audit",
		},
		Lister: sources.ListerFunc(key.ListComputers),
	})

	r.add(Definition{
		SourceSystem:    SourceLabAwards,
		EntityType:      EntityLabAward,
		IngestionMethod: "csv_import",
		IngestionSource: cfg.Sources.LabAwards.Glob,
		BasicHashFields: []string{
			"AwardID", "AwardTitle", "PersonUniqname", "PersonName",
			"PersonRole", "PersonApptDeptID", "PersonApptDept",
			"ProjectStartDate", "ProjectEndDate", "DirectAmount",
		},
		Lister: awards,
	})

	return r
}

func (r *Registry) add(def Definition) {
	r.defs[def.SourceSystem+"/"+def.EntityType] = def
}

// Lookup returns the definition for a (source, entity) pair.
func (r *Registry) Lookup(sourceSystem, entityType string) (Definition, error) {
	def, ok := r.defs[sourceSystem+"/"+entityType]
	if !ok {
		return Definition{}, fmt.Errorf("no ingester registered for %s/%s (known: %v)", sourceSystem, entityType, r.Keys())
	}
	return def, nil
}

// Keys lists the registered (source, entity) pairs, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type detailFunc func(ctx context.Context, externalID string) (map[string]any, error)

func (f detailFunc) Detail(ctx context.Context, externalID string) (map[string]any, error) {
	return f(ctx, externalID)
}

func ldapLister(client *sources.LDAPClient, baseDN, filter string, attrs []string, idAttr, modifiedAttr string) sources.Lister {
	return sources.ListerFunc(func(ctx context.Context, since *time.Time) ([]sources.Record, error) {
		return client.SearchRecords(ctx, baseDN, filter, attrs, idAttr, modifiedAttr)
	})
}

// employmentLister walks the known uniqnames (from the MCommunity Silver
// table) and fetches each person's employment records. The identity API has
// no list endpoint.
type employmentLister struct {
	umapi *sources.UMAPIClient
	pool  *pgxpool.Pool
}

func (l *employmentLister) List(ctx context.Context, since *time.Time) ([]sources.Record, error) {
	rows, err := l.pool.Query(ctx, `SELECT uid FROM silver.mcommunity_users ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate uniqnames for employment fetch: %w", err)
	}
	defer rows.Close()

	var uniqnames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan uniqname: %w", err)
		}
		uniqnames = append(uniqnames, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var records []sources.Record
	for _, u := range uniqnames {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		recs, err := l.umapi.EmploymentByUniqname(ctx, u)
		if err != nil {
			// Missing people are expected (students, sponsored affiliates);
			// other errors surface per-record downstream.
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}
