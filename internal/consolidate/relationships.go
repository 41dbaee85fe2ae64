package consolidate

import (
	"context"
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
)

var groupMemberColumns = []string{
	"group_id", "member_type", "member_uniqname", "member_group_id",
	"is_direct_member", "source_system",
}

var groupOwnerColumns = []string{
	"group_id", "owner_type", "owner_uniqname", "owner_group_id",
	"source_system",
}

// ExtractRelationships rebuilds silver.group_members and silver.group_owners
// from the consolidated groups. Full refresh: associations are derivable
// from current state, so TRUNCATE+INSERT is both simpler and correct.
func (r *Runner) ExtractRelationships(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "group_relationships", func(ctx context.Context, stats *Stats) error {
		groups, err := LoadConsolidatedGroups(ctx, r.Pool)
		if err != nil {
			return err
		}

		var memberRows, ownerRows [][]any
		memberSeen := map[string]bool{}
		ownerSeen := map[string]bool{}

		for _, g := range groups {
			stats.Processed++

			directSet := map[string]bool{}
			for _, raw := range g.DirectMembers {
				if id, kind := ParseIdentifier(raw); kind != IdentUnknown {
					directSet[kind+"|"+id] = true
				}
			}

			for _, raw := range g.Members {
				id, kind := ParseIdentifier(raw)
				if kind == IdentUnknown || id == "" {
					continue
				}
				dedupe := g.GroupID + "|" + kind + "|" + id + "|" + g.SourceSystem
				if memberSeen[dedupe] {
					continue
				}
				memberSeen[dedupe] = true

				// AD membership is direct by definition; MCommunity membership
				// is direct only when the id also appears in direct_members.
				isDirect := strings.Contains(g.SourceSystem, bronze.SourceAD) ||
					directSet[kind+"|"+id]

				var uniqname, groupID any
				if kind == IdentUser {
					uniqname = id
				} else {
					groupID = id
				}
				memberRows = append(memberRows, []any{
					g.GroupID, kind, uniqname, groupID, isDirect, g.SourceSystem,
				})
			}

			for _, raw := range g.Owners {
				id, kind := ParseIdentifier(raw)
				if kind == IdentUnknown || id == "" {
					continue
				}
				dedupe := g.GroupID + "|" + kind + "|" + id + "|" + g.SourceSystem
				if ownerSeen[dedupe] {
					continue
				}
				ownerSeen[dedupe] = true

				var uniqname, groupID any
				if kind == IdentUser {
					uniqname = id
				} else {
					groupID = id
				}
				ownerRows = append(ownerRows, []any{
					g.GroupID, kind, uniqname, groupID, g.SourceSystem,
				})
			}
		}

		if err := r.rebuild(ctx, "silver.group_members", groupMemberColumns, memberRows); err != nil {
			return err
		}
		if err := r.rebuild(ctx, "silver.group_owners", groupOwnerColumns, ownerRows); err != nil {
			return err
		}
		stats.Written = len(memberRows) + len(ownerRows)
		return nil
	})
}
