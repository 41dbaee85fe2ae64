package consolidate

import (
	"context"
	"sort"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// LabsSpec is the upsert shape for silver.labs.
var LabsSpec = storage.UpsertSpec{
	Table:      "silver.labs",
	KeyColumns: []string{"lab_id"},
	Columns: []string{
		"lab_id", "lab_name", "pi_uniqname", "department_id", "ad_ou_dn",
		"has_ad_ou", "award_count", "source_system", "entity_hash",
	},
}

var labMemberColumns = []string{
	"lab_id", "member_uniqname", "member_role", "source_system",
}

// labOUMinDepth is how deep in the directory tree a lab OU sits; anything
// shallower is an organizational container, not a lab.
const labOUMinDepth = 8

// BuildLabs derives silver.labs and silver.lab_members. A lab exists per
// principal investigator, discovered from award rows naming a PI role and
// from deep AD OUs whose name normalizes to a uniqname. Everyone on a PI's
// awards becomes a lab member with their award role.
func (r *Runner) BuildLabs(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "labs", func(ctx context.Context, stats *Stats) error {
		awards, err := LoadLabAwards(ctx, r.Pool)
		if err != nil {
			return err
		}
		computers, err := LoadADComputers(ctx, r.Pool)
		if err != nil {
			return err
		}

		type lab struct {
			piUniqname   string
			labName      string
			departmentID string
			adOuDN       string
			awardIDs     map[string]bool
		}
		labs := map[string]*lab{}
		get := func(pi string) *lab {
			if l, ok := labs[pi]; ok {
				return l
			}
			l := &lab{piUniqname: pi, awardIDs: map[string]bool{}}
			labs[pi] = l
			return l
		}

		// Award PIs. The PI's own row supplies the lab's name and department.
		awardPIs := map[string][]string{} // award_id → PI uniqnames
		for _, a := range awards {
			pi := hashing.NormalizeUniqname(textOf(a.PersonUniqname))
			if pi == "" || !strings.Contains(strings.ToLower(textOf(a.PersonRole)), "principal investigator") {
				continue
			}
			l := get(pi)
			if id := textOf(a.AwardID); id != "" {
				l.awardIDs[id] = true
				awardPIs[id] = appendUnique(awardPIs[id], pi)
			}
			if l.labName == "" && textOf(a.PersonName) != "" {
				l.labName = textOf(a.PersonName) + " Lab"
			}
			if l.departmentID == "" {
				l.departmentID = textOf(a.PersonApptDeptID)
			}
		}

		// Deep AD OUs named after a uniqname mark a lab's directory presence.
		// The OU's DN is the computer's DN minus its leading CN component.
		for _, c := range computers {
			if c.OUDepth == nil || *c.OUDepth < labOUMinDepth || len(c.OUFullPath) == 0 {
				continue
			}
			ouName := c.OUFullPath[0]
			pi := hashing.NormalizeUniqname(firstToken(ouName))
			if pi == "" {
				continue
			}
			l := get(pi)
			if l.adOuDN == "" {
				l.adOuDN = parentDN(textOf(c.DistinguishedName))
			}
			if l.labName == "" {
				l.labName = ouName
			}
		}

		piList := make([]string, 0, len(labs))
		for pi := range labs {
			piList = append(piList, pi)
		}
		sort.Strings(piList)

		rows := make([]row, 0, len(piList))
		for _, pi := range piList {
			l := labs[pi]
			labID := "lab-" + pi

			var sourceNames []string
			if len(l.awardIDs) > 0 {
				sourceNames = append(sourceNames, bronze.SourceLabAwards)
			}
			if l.adOuDN != "" {
				sourceNames = append(sourceNames, bronze.SourceAD)
			}
			sort.Strings(sourceNames)

			values := map[string]any{
				"lab_id":        labID,
				"lab_name":      firstNonEmpty(l.labName, pi+" lab"),
				"pi_uniqname":   pi,
				"department_id": firstNonEmpty(l.departmentID),
				"ad_ou_dn":      firstNonEmpty(l.adOuDN),
				"has_ad_ou":     l.adOuDN != "",
				"award_count":   len(l.awardIDs),
				"source_system": strings.Join(sourceNames, "+"),
			}
			rows = append(rows, row{key: labID, values: values})
		}

		if err := r.upsertRows(ctx, LabsSpec, "lab_id", rows, stats); err != nil {
			return err
		}

		// Lab membership: everyone on an award joins the lab of each of that
		// award's PIs.
		var memberRows [][]any
		seen := map[string]bool{}
		for _, a := range awards {
			member := hashing.NormalizeUniqname(textOf(a.PersonUniqname))
			awardID := textOf(a.AwardID)
			if member == "" || awardID == "" {
				continue
			}
			for _, pi := range awardPIs[awardID] {
				labID := "lab-" + pi
				dedupe := labID + "|" + member
				if seen[dedupe] {
					continue
				}
				seen[dedupe] = true
				memberRows = append(memberRows, []any{
					labID, member, firstNonEmpty(textOf(a.PersonRole)), bronze.SourceLabAwards,
				})
			}
		}
		return r.rebuild(ctx, "silver.lab_members", labMemberColumns, memberRows)
	})
}

// firstToken returns the first whitespace-delimited token of an OU name, the
// conventional position of the PI uniqname in lab OU names.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	token := strings.ToLower(fields[0])
	for _, r := range token {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	if len(token) < 3 || len(token) > 8 {
		return ""
	}
	return token
}

// parentDN strips the leading RDN from a DN, yielding the containing OU.
func parentDN(dn string) string {
	if comma := strings.IndexByte(dn, ','); comma >= 0 {
		return strings.TrimSpace(dn[comma+1:])
	}
	return ""
}
