package silver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

var adUserFields = []fieldMapping{
	{"distinguished_name", "distinguishedName", nullString},
	{"cn", "cn", nullString},
	{"display_name", "displayName", nullString},
	{"given_name", "givenName", nullString},
	{"surname", "sn", nullString},
	{"mail", "mail", nullString},
	{"description", "description", nullLDAPString},
	{"user_principal_name", "userPrincipalName", nullString},
	{"employee_id", "employeeID", nullString},
	{"is_enabled", "userAccountControl", nullEnabled},
	{"user_account_control", "userAccountControl", nullInt64},
	{"when_created", "whenCreated", nullADTime},
	{"when_changed", "whenChanged", nullADTime},
	{"last_logon", "lastLogonTimestamp", nullFiletime},
	{"member_of", "memberOf", nullStringList},
	{"proxy_addresses", "proxyAddresses", nullStringList},
}

// nullLDAPString handles description-style attributes that may be
// multi-valued; the first value wins.
func nullLDAPString(doc map[string]any, key string) any {
	list := stringList(doc, key)
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

var ADUsersSpec = storage.UpsertSpec{
	Table:      "silver.ad_users",
	KeyColumns: []string{"sam_account_name"},
	Columns: append(append(mappedColumns(adUserFields, "sam_account_name"), ouColumns...),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type adUserProjector struct{}

func (adUserProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		sam := rawString(e.RawData, "sAMAccountName")
		if sam == "" {
			errs = append(errs, fmt.Errorf("ad user %s has no sAMAccountName", e.ExternalID))
			continue
		}
		values := map[string]any{
			"sam_account_name": sam,
			"raw_id":           e.RawID,
		}
		projectFields(e.RawData, adUserFields, values)
		ParseOUHierarchy(rawString(e.RawData, "distinguishedName"), false).apply(values)
		rows = append(rows, Row{Key: sam, Values: values})
	}
	return rows, errs
}

var adGroupFields = []fieldMapping{
	{"distinguished_name", "distinguishedName", nullString},
	{"cn", "cn", nullString},
	{"description", "description", nullLDAPString},
	{"group_email", "mail", nullString},
	{"managed_by", "managedBy", nullString},
	{"members", "member", nullStringList},
	{"member_of", "memberOf", nullStringList},
	{"when_created", "whenCreated", nullADTime},
	{"when_changed", "whenChanged", nullADTime},
}

var ADGroupsSpec = storage.UpsertSpec{
	Table:      "silver.ad_groups",
	KeyColumns: []string{"sam_account_name"},
	Columns: append(append(mappedColumns(adGroupFields, "sam_account_name"), ouColumns...),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type adGroupProjector struct{}

func (adGroupProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		sam := rawString(e.RawData, "sAMAccountName")
		if sam == "" {
			errs = append(errs, fmt.Errorf("ad group %s has no sAMAccountName", e.ExternalID))
			continue
		}
		values := map[string]any{
			"sam_account_name": sam,
			"raw_id":           e.RawID,
		}
		projectFields(e.RawData, adGroupFields, values)
		ParseOUHierarchy(rawString(e.RawData, "distinguishedName"), false).apply(values)
		rows = append(rows, Row{Key: sam, Values: values})
	}
	return rows, errs
}

var adComputerFields = []fieldMapping{
	{"distinguished_name", "distinguishedName", nullString},
	{"cn", "cn", nullString},
	{"dns_host_name", "dNSHostName", nullString},
	{"description", "description", nullLDAPString},
	{"operating_system", "operatingSystem", nullString},
	{"operating_system_version", "operatingSystemVersion", nullString},
	{"is_enabled", "userAccountControl", nullEnabled},
	{"user_account_control", "userAccountControl", nullInt64},
	{"when_created", "whenCreated", nullADTime},
	{"when_changed", "whenChanged", nullADTime},
	{"last_logon", "lastLogonTimestamp", nullFiletime},
	{"member_of", "memberOf", nullStringList},
	{"service_principal_names", "servicePrincipalName", nullStringList},
}

var ADComputersSpec = storage.UpsertSpec{
	Table:      "silver.ad_computers",
	KeyColumns: []string{"computer_name"},
	Columns: append(append(mappedColumns(adComputerFields, "computer_name"), ouColumns...),
		"extracted_uniqname", "entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type adComputerProjector struct{}

func (adComputerProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		name := rawString(e.RawData, "cn")
		if name == "" {
			errs = append(errs, fmt.Errorf("ad computer %s has no cn", e.ExternalID))
			continue
		}
		values := map[string]any{
			"computer_name": name,
			"raw_id":        e.RawID,
		}
		projectFields(e.RawData, adComputerFields, values)
		ParseOUHierarchy(rawString(e.RawData, "distinguishedName"), false).apply(values)
		values["extracted_uniqname"] = nilIfEmpty(ExtractUniqname(name, rawString(e.RawData, "description")))
		rows = append(rows, Row{Key: name, Values: values})
	}
	return rows, errs
}

// uniqnamePattern matches the uniqname segment of lab asset names like
// "LSA-CHEM-KERBY01" or descriptions like "kerby's workstation". Uniqnames
// are 3-8 lowercase letters.
var uniqnamePattern = regexp.MustCompile(`^[a-z]{3,8}$`)

// ExtractUniqname pulls a candidate owner uniqname out of an AD computer
// name or description. Names are tried first: the token after the last
// hyphen with trailing digits stripped. The description fallback looks for
// a "user: xyz" or possessive form.
func ExtractUniqname(name, description string) string {
	candidate := strings.ToLower(name)
	if idx := strings.LastIndexByte(candidate, '-'); idx >= 0 {
		candidate = candidate[idx+1:]
	}
	candidate = strings.TrimRight(candidate, "0123456789")
	if uniqnamePattern.MatchString(candidate) {
		return candidate
	}

	desc := strings.ToLower(description)
	for _, marker := range []string{"user:", "owner:"} {
		if idx := strings.Index(desc, marker); idx >= 0 {
			rest := strings.TrimSpace(desc[idx+len(marker):])
			if sp := strings.IndexAny(rest, " \t,;"); sp > 0 {
				rest = rest[:sp]
			}
			rest = hashing.NormalizeUniqname(rest)
			if uniqnamePattern.MatchString(rest) {
				return rest
			}
		}
	}
	return ""
}
