package consolidate

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// UsersSpec is the upsert shape for silver.users.
var UsersSpec = storage.UpsertSpec{
	Table:      "silver.users",
	KeyColumns: []string{"uniqname"},
	Columns: []string{
		"uniqname", "first_name", "last_name", "full_name", "display_name",
		"primary_email", "work_phone", "department_id", "department_name",
		"job_title", "tdx_user_uid", "is_active", "is_pi",
		"umich_empl_ids", "department_ids", "job_codes", "supervisor_ids",
		"mcommunity_ou_affiliations", "ad_group_memberships",
		"source_system", "data_quality_score", "quality_flags",
		"entity_hash", "ingestion_run_id",
	},
}

// ConsolidateUsers merges the four user source tables into silver.users,
// keyed by uniqname. Field conflicts are resolved by per-field precedence;
// multi-employment identity-API records aggregate into arrays.
func (r *Runner) ConsolidateUsers(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "users", func(ctx context.Context, stats *Stats) error {
		tdxUsers, err := LoadTDXUsers(ctx, r.Pool)
		if err != nil {
			return err
		}
		umapiUsers, err := LoadUMAPIUsers(ctx, r.Pool)
		if err != nil {
			return err
		}
		mcomUsers, err := LoadMCommunityUsers(ctx, r.Pool)
		if err != nil {
			return err
		}
		adUsers, err := LoadADUsers(ctx, r.Pool)
		if err != nil {
			return err
		}
		piSet, err := r.loadPISet(ctx)
		if err != nil {
			return err
		}

		type userSources struct {
			tdx   *TDXUserRow
			umapi []UMAPIUserRow
			mcom  *MCommunityUserRow
			ad    *ADUserRow
		}

		grouped := map[string]*userSources{}
		var order []string
		get := func(uniqname string) *userSources {
			if s, ok := grouped[uniqname]; ok {
				return s
			}
			s := &userSources{}
			grouped[uniqname] = s
			order = append(order, uniqname)
			return s
		}

		for i := range tdxUsers {
			u := hashing.NormalizeUniqname(textOf(tdxUsers[i].Uniqname))
			if u != "" {
				get(u).tdx = &tdxUsers[i]
			}
		}
		for i := range umapiUsers {
			u := hashing.NormalizeUniqname(umapiUsers[i].Uniqname)
			if u != "" {
				s := get(u)
				s.umapi = append(s.umapi, umapiUsers[i])
			}
		}
		for i := range mcomUsers {
			u := hashing.NormalizeUniqname(mcomUsers[i].UID)
			if u != "" {
				get(u).mcom = &mcomUsers[i]
			}
		}
		for i := range adUsers {
			u := hashing.NormalizeUniqname(adUsers[i].SAMAccountName)
			if u != "" {
				get(u).ad = &adUsers[i]
			}
		}
		sort.Strings(order)

		rows := make([]row, 0, len(order))
		for _, uniqname := range order {
			s := grouped[uniqname]

			// Lowest empl_rcd supplies the primary employment scalars.
			sort.Slice(s.umapi, func(i, j int) bool { return s.umapi[i].EmplRcd < s.umapi[j].EmplRcd })
			var primary *UMAPIUserRow
			if len(s.umapi) > 0 {
				primary = &s.umapi[0]
			}

			values := mergeUser(uniqname, s.tdx, primary, s.umapi, s.mcom, s.ad, piSet)
			rows = append(rows, row{key: uniqname, values: values})
		}

		return r.upsertRows(ctx, UsersSpec, "uniqname", rows, stats)
	})
}

func mergeUser(uniqname string, tdx *TDXUserRow, primary *UMAPIUserRow, employments []UMAPIUserRow, mcom *MCommunityUserRow, ad *ADUserRow, piSet map[string]bool) map[string]any {
	var tdxFirst, tdxLast, tdxEmail, tdxPhone, tdxTitle, tdxDeptID, tdxDeptName, tdxUID string
	if tdx != nil {
		tdxUID = tdx.UID
		tdxFirst = textOf(tdx.FirstName)
		tdxLast = textOf(tdx.LastName)
		tdxEmail = textOf(tdx.PrimaryEmail)
		tdxPhone = textOf(tdx.WorkPhone)
		_ = tdxPhone
		tdxTitle = textOf(tdx.Title)
		tdxDeptName = textOf(tdx.DefaultAccount)
		if tdx.DefaultAccountID != nil {
			tdxDeptID = int64Text(*tdx.DefaultAccountID)
		}
	}
	var umFirst, umLast, umPhone, umTitle, umDeptID, umDeptName string
	if primary != nil {
		umFirst = textOf(primary.FirstName)
		umLast = textOf(primary.LastName)
		umPhone = textOf(primary.WorkPhone)
		umTitle = textOf(primary.JobTitle)
		umDeptID = textOf(primary.DepartmentID)
		umDeptName = textOf(primary.DepartmentName)
	}
	var mcFirst, mcLast, mcDisplay, mcMail, mcPhone, mcTitle string
	var mcAffiliations []string
	if mcom != nil {
		mcFirst = textOf(mcom.GivenName)
		mcLast = textOf(mcom.Surname)
		mcDisplay = textOf(mcom.DisplayName)
		mcMail = textOf(mcom.Mail)
		mcPhone = textOf(mcom.TelephoneNumber)
		mcTitle = textOf(mcom.Title)
		mcAffiliations = mcom.OUAffiliations
	}
	var adFirst, adLast, adDisplay, adMail string
	var adGroups []string
	if ad != nil {
		adFirst = textOf(ad.GivenName)
		adLast = textOf(ad.Surname)
		adDisplay = textOf(ad.DisplayName)
		adMail = textOf(ad.Mail)
		adGroups = ad.MemberOf
	}

	firstName := firstNonEmpty(tdxFirst, umFirst, mcFirst, adFirst)
	lastName := firstNonEmpty(tdxLast, umLast, mcLast, adLast)

	var derivedFull string
	if firstName != nil && lastName != nil {
		derivedFull = lastName.(string) + ", " + firstName.(string)
	}
	fullName := firstNonEmpty(derivedFull, mcDisplay, adDisplay)

	// Employment arrays aggregate across every empl_rcd, lowest first.
	var emplIDs, deptIDs, jobCodes, supervisorIDs []string
	for _, e := range employments {
		emplIDs = appendUnique(emplIDs, textOf(e.EmplID))
		deptIDs = appendUnique(deptIDs, textOf(e.DepartmentID))
		jobCodes = appendUnique(jobCodes, textOf(e.JobCode))
		supervisorIDs = appendUnique(supervisorIDs, textOf(e.SupervisorID))
	}

	isActive := false
	if tdx != nil && boolOf(tdx.IsActive) {
		isActive = true
	}
	if ad != nil && boolOf(ad.IsEnabled) {
		isActive = true
	}
	for _, e := range employments {
		if boolOf(e.IsActive) {
			isActive = true
		}
	}
	if mcom != nil {
		isActive = true
	}

	var sourceNames []string
	if tdx != nil {
		sourceNames = append(sourceNames, bronze.SourceTDX)
	}
	if ad != nil {
		sourceNames = append(sourceNames, bronze.SourceAD)
	}
	if mcom != nil {
		sourceNames = append(sourceNames, bronze.SourceMCommunity)
	}
	if len(employments) > 0 {
		sourceNames = append(sourceNames, bronze.SourceUMAPI)
	}
	sort.Strings(sourceNames)

	values := map[string]any{
		"uniqname":                   uniqname,
		"first_name":                 firstName,
		"last_name":                  lastName,
		"full_name":                  fullName,
		"display_name":               firstNonEmpty(derivedFull, mcDisplay, adDisplay),
		"primary_email":              firstNonEmpty(tdxEmail, mcMail, adMail),
		"work_phone":                 firstNonEmpty(umPhone, mcPhone),
		"department_id":              firstNonEmpty(umDeptID, tdxDeptID),
		"department_name":            firstNonEmpty(umDeptName, tdxDeptName),
		"job_title":                  firstNonEmpty(umTitle, mcTitle, tdxTitle),
		"tdx_user_uid":               firstNonEmpty(tdxUID),
		"is_active":                  isActive,
		"is_pi":                      piSet[uniqname],
		"umich_empl_ids":             listOrNil(emplIDs),
		"department_ids":             listOrNil(deptIDs),
		"job_codes":                  listOrNil(jobCodes),
		"supervisor_ids":             listOrNil(supervisorIDs),
		"mcommunity_ou_affiliations": listOrNil(mcAffiliations),
		"ad_group_memberships":       listOrNil(adGroups),
		"source_system":              strings.Join(sourceNames, "+"),
	}

	q := newQualityScore()
	if values["primary_email"] == nil {
		q.penalize(0.15, "missing_email")
	}
	if firstName == nil || lastName == nil {
		q.penalize(0.20, "missing_name")
	}
	if values["department_id"] == nil {
		q.penalize(0.10, "missing_department")
	}
	if values["job_title"] == nil {
		q.penalize(0.10, "missing_job_title")
	}
	if len(sourceNames) == 1 {
		q.penalize(0.15, "single_source")
	}
	if len(sourceNames) == 4 {
		q.bonus(0.10, "")
	}
	values["data_quality_score"] = q.Score()
	values["quality_flags"] = q.Flags()

	return values
}

// loadPISet builds the set of uniqnames treated as principal investigators:
// award rows naming a PI role, plus labs whose PI came from an AD lab OU.
func (r *Runner) loadPISet(ctx context.Context) (map[string]bool, error) {
	set := map[string]bool{}

	awards, err := LoadLabAwards(ctx, r.Pool)
	if err != nil {
		return nil, err
	}
	for _, a := range awards {
		role := strings.ToLower(textOf(a.PersonRole))
		u := hashing.NormalizeUniqname(textOf(a.PersonUniqname))
		if u != "" && strings.Contains(role, "principal investigator") {
			set[u] = true
		}
	}

	labs, err := LoadLabs(ctx, r.Pool)
	if err != nil {
		// The labs builder may not have run yet; awards alone still give a
		// usable PI set.
		r.Logger.Warn().Err(err).Msg("labs unavailable for PI set")
		return set, nil
	}
	for _, l := range labs {
		if u := hashing.NormalizeUniqname(textOf(l.PIUniqname)); u != "" {
			set[u] = true
		}
	}
	return set, nil
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, item := range list {
		if item == value {
			return list
		}
	}
	return append(list, value)
}

func listOrNil(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return list
}

func int64Text(v int64) string {
	return strconv.FormatInt(v, 10)
}
