package silver

import (
	"fmt"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

var mcommunityUserFields = []fieldMapping{
	{"distinguished_name", "distinguishedName", nullString},
	{"cn", "cn", nullLDAPString},
	{"display_name", "displayName", nullString},
	{"given_name", "givenName", nullString},
	{"surname", "sn", nullLDAPString},
	{"mail", "mail", nullString},
	{"title", "title", nullLDAPString},
	{"telephone_number", "telephoneNumber", nullLDAPString},
	{"ou_affiliations", "ou", nullStringList},
}

var MCommunityUsersSpec = storage.UpsertSpec{
	Table:      "silver.mcommunity_users",
	KeyColumns: []string{"uid"},
	Columns: append(mappedColumns(mcommunityUserFields, "uid"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type mcommunityUserProjector struct{}

func (mcommunityUserProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		uid := hashing.NormalizeUniqname(rawString(e.RawData, "uid"))
		if uid == "" {
			errs = append(errs, fmt.Errorf("mcommunity user %s has no uid", e.ExternalID))
			continue
		}
		values := map[string]any{
			"uid":    uid,
			"raw_id": e.RawID,
		}
		projectFields(e.RawData, mcommunityUserFields, values)
		rows = append(rows, Row{Key: uid, Values: values})
	}
	return rows, errs
}

var mcommunityGroupFields = []fieldMapping{
	{"distinguished_name", "distinguishedName", nullString},
	{"cn", "cn", nullLDAPString},
	{"description", "umichDescription", nullLDAPString},
	{"members", "member", nullStringList},
	{"direct_members", "umichDirectMember", nullStringList},
	{"owners", "owner", nullStringList},
}

var MCommunityGroupsSpec = storage.UpsertSpec{
	Table:      "silver.mcommunity_groups",
	KeyColumns: []string{"group_email"},
	Columns: append(mappedColumns(mcommunityGroupFields, "group_email"),
		"entity_hash", "source_system", "raw_id", "ingestion_run_id"),
}

type mcommunityGroupProjector struct{}

func (mcommunityGroupProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, e := range entities {
		email := rawString(e.RawData, "umichGroupEmail")
		if email == "" {
			errs = append(errs, fmt.Errorf("mcommunity group %s has no umichGroupEmail", e.ExternalID))
			continue
		}
		values := map[string]any{
			"group_email": email,
			"raw_id":      e.RawID,
		}
		projectFields(e.RawData, mcommunityGroupFields, values)
		rows = append(rows, Row{Key: email, Values: values})
	}
	return rows, errs
}
