package consolidate

import (
	"context"
	"sort"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// GroupsSpec is the upsert shape for silver.groups.
var GroupsSpec = storage.UpsertSpec{
	Table:      "silver.groups",
	KeyColumns: []string{"group_id"},
	Columns: []string{
		"group_id", "group_name", "group_email", "description",
		"distinguished_name", "members", "direct_members", "owners",
		"source_system", "data_quality_score", "quality_flags",
		"entity_hash", "ingestion_run_id",
	},
}

// ConsolidateGroups merges AD and MCommunity groups into silver.groups. AD
// groups key by lowercased sAMAccountName; MCommunity groups by their group
// email. The two namespaces rarely collide; when they do the row merges both
// membership lists.
func (r *Runner) ConsolidateGroups(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "groups", func(ctx context.Context, stats *Stats) error {
		adGroups, err := LoadADGroups(ctx, r.Pool)
		if err != nil {
			return err
		}
		mcomGroups, err := LoadMCommunityGroups(ctx, r.Pool)
		if err != nil {
			return err
		}

		byID := map[string]map[string]any{}
		var order []string

		for i := range adGroups {
			g := &adGroups[i]
			id := strings.ToLower(g.SAMAccountName)
			if id == "" {
				continue
			}
			values := map[string]any{
				"group_id":           id,
				"group_name":         firstNonEmpty(textOf(g.CN), g.SAMAccountName),
				"group_email":        firstNonEmpty(textOf(g.GroupEmail)),
				"description":        firstNonEmpty(textOf(g.Description)),
				"distinguished_name": firstNonEmpty(textOf(g.DistinguishedName)),
				"members":            listOrNil(g.Members),
				"direct_members":     nil, // AD membership is all direct
				"owners":             listOrNil(ownerList(textOf(g.ManagedBy))),
				"source_system":      bronze.SourceAD,
			}
			byID[id] = values
			order = append(order, id)
		}

		for i := range mcomGroups {
			g := &mcomGroups[i]
			id := strings.ToLower(g.GroupEmail)
			if id == "" {
				continue
			}
			if existing, ok := byID[id]; ok {
				existing["group_email"] = g.GroupEmail
				existing["members"] = listOrNil(mergeLists(asList(existing["members"]), g.Members))
				existing["direct_members"] = listOrNil(g.DirectMembers)
				existing["owners"] = listOrNil(mergeLists(asList(existing["owners"]), g.Owners))
				existing["source_system"] = bronze.SourceAD + "+" + bronze.SourceMCommunity
				continue
			}
			byID[id] = map[string]any{
				"group_id":           id,
				"group_name":         firstNonEmpty(textOf(g.CN), g.GroupEmail),
				"group_email":        g.GroupEmail,
				"description":        firstNonEmpty(textOf(g.Description)),
				"distinguished_name": firstNonEmpty(textOf(g.DistinguishedName)),
				"members":            listOrNil(g.Members),
				"direct_members":     listOrNil(g.DirectMembers),
				"owners":             listOrNil(g.Owners),
				"source_system":      bronze.SourceMCommunity,
			}
			order = append(order, id)
		}

		sort.Strings(order)
		rows := make([]row, 0, len(order))
		for _, id := range order {
			values := byID[id]

			q := newQualityScore()
			if values["members"] == nil {
				q.penalize(0.10, "no_members")
			}
			if values["description"] == nil {
				q.penalize(0.10, "missing_description")
			}
			if !strings.Contains(values["source_system"].(string), "+") {
				q.penalize(0.15, "single_source")
			}
			values["data_quality_score"] = q.Score()
			values["quality_flags"] = q.Flags()

			rows = append(rows, row{key: id, values: values})
		}

		return r.upsertRows(ctx, GroupsSpec, "group_id", rows, stats)
	})
}

func ownerList(managedBy string) []string {
	if managedBy == "" {
		return nil
	}
	return []string{managedBy}
}

func asList(v any) []string {
	if list, ok := v.([]string); ok {
		return list
	}
	return nil
}

func mergeLists(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, item := range b {
		out = appendUnique(out, item)
	}
	return out
}
