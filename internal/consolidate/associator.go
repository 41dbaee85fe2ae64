package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Discovery methods, in tier order. Tier-1 methods are strong evidence and
// get a confidence floor; tier-2 methods are circumstantial and get a
// ceiling.
const (
	MethodADOuNested    = "ad_ou_nested"
	MethodOwnerIsPI     = "owner_is_pi"
	MethodFinOwnerIsPI  = "financial_owner_is_pi"
	MethodNameHasPI     = "name_contains_pi"
	MethodOwnerMember   = "owner_in_lab_members"
	MethodLastUserInLab = "last_user_in_lab_members"
)

var methodBase = map[string]float64{
	MethodADOuNested:    0.80,
	MethodOwnerIsPI:     0.85,
	MethodFinOwnerIsPI:  0.80,
	MethodNameHasPI:     0.70,
	MethodOwnerMember:   0.35,
	MethodLastUserInLab: 0.30,
}

var tier2Methods = map[string]bool{
	MethodOwnerMember:   true,
	MethodLastUserInLab: true,
}

// Tier bounds: tier-1 associations never fall below 0.70, tier-2
// associations never rise above 0.50 regardless of bonuses.
const (
	tier1Floor   = 0.70
	tier1Ceiling = 1.00
	tier2Floor   = 0.20
	tier2Ceiling = 0.50
)

var labComputerColumns = []string{
	"computer_id", "lab_id", "association_method", "confidence_score",
	"owner_is_pi", "fin_owner_is_pi", "owner_is_member", "fin_owner_is_member",
	"function_is_research", "function_is_classroom",
	"matched_ou", "matched_group_id", "matched_user", "is_primary",
	"quality_flags",
}

// associationInput is the slice of silver.computers the associator needs.
type associationInput struct {
	ComputerID        string
	ComputerName      *string
	DistinguishedName *string
	OwnerUniqname     *string
	FinOwnerUniqname  *string
	LastUser          *string
	FunctionName      *string
}

type association struct {
	computerID string
	labID      string
	method     string
	confidence float64

	ownerIsPI        bool
	finOwnerIsPI     bool
	ownerIsMember    bool
	finOwnerIsMember bool
	funcIsResearch   bool
	funcIsClassroom  bool

	matchedOU    string
	matchedUser  string
	isPrimary    bool
	qualityFlags []string
}

// AssociateLabs rebuilds silver.lab_computers from current state and mirrors
// each computer's best association back onto silver.computers. Full refresh:
// associations are entirely derivable, so TRUNCATE+INSERT is correct.
func (r *Runner) AssociateLabs(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "lab_computers", func(ctx context.Context, stats *Stats) error {
		computers, err := r.loadAssociationInputs(ctx)
		if err != nil {
			return err
		}
		labs, err := LoadLabs(ctx, r.Pool)
		if err != nil {
			return err
		}
		members, err := LoadLabMembers(ctx, r.Pool)
		if err != nil {
			return err
		}

		membership := map[string]map[string]bool{} // lab_id → member set
		for _, m := range members {
			if membership[m.LabID] == nil {
				membership[m.LabID] = map[string]bool{}
			}
			membership[m.LabID][m.MemberUniqname] = true
		}

		var all []association
		for i := range computers {
			stats.Processed++
			all = append(all, scoreComputer(&computers[i], labs, membership)...)
		}

		markPrimaries(all)

		rows := make([][]any, 0, len(all))
		for _, a := range all {
			rows = append(rows, []any{
				a.computerID, a.labID, a.method, a.confidence,
				a.ownerIsPI, a.finOwnerIsPI, a.ownerIsMember, a.finOwnerIsMember,
				a.funcIsResearch, a.funcIsClassroom,
				firstNonEmpty(a.matchedOU), nil, firstNonEmpty(a.matchedUser),
				a.isPrimary, listOrNil(a.qualityFlags),
			})
		}
		if err := r.rebuild(ctx, "silver.lab_computers", labComputerColumns, rows); err != nil {
			return err
		}
		stats.Written = len(rows)

		if r.DryRun {
			return nil
		}
		return r.propagatePrimaries(ctx, all)
	})
}

// scoreComputer runs every discovery method for one computer against every
// lab, deduplicates keeping the strongest base, then applies the additive
// scoring and tier bounds.
func scoreComputer(c *associationInput, labs []LabRow, membership map[string]map[string]bool) []association {
	owner := textOf(c.OwnerUniqname)
	finOwner := textOf(c.FinOwnerUniqname)
	lastUser := textOf(c.LastUser)
	name := strings.ToLower(textOf(c.ComputerName))
	dn := strings.ToLower(textOf(c.DistinguishedName))
	function := strings.ToLower(textOf(c.FunctionName))

	type candidate struct {
		lab    *LabRow
		method string
	}
	best := map[string]candidate{} // lab_id → strongest method

	offer := func(lab *LabRow, method string) {
		current, ok := best[lab.LabID]
		if !ok || methodBase[method] > methodBase[current.method] {
			best[lab.LabID] = candidate{lab: lab, method: method}
		}
	}

	for i := range labs {
		lab := &labs[i]
		pi := textOf(lab.PIUniqname)

		if lab.HasADOu && dn != "" {
			if ou := strings.ToLower(textOf(lab.ADOuDN)); ou != "" && strings.Contains(dn, ou) {
				offer(lab, MethodADOuNested)
			}
		}
		if pi != "" && owner == pi {
			offer(lab, MethodOwnerIsPI)
		}
		if pi != "" && finOwner == pi {
			offer(lab, MethodFinOwnerIsPI)
		}
		if pi != "" && name != "" && strings.Contains(name, pi) {
			offer(lab, MethodNameHasPI)
		}
		labMembers := membership[lab.LabID]
		if owner != "" && owner != pi && labMembers[owner] {
			offer(lab, MethodOwnerMember)
		}
		if lastUser != "" && labMembers[lastUser] {
			offer(lab, MethodLastUserInLab)
		}
	}

	labIDs := make([]string, 0, len(best))
	for id := range best {
		labIDs = append(labIDs, id)
	}
	sort.Strings(labIDs)

	var out []association
	for _, labID := range labIDs {
		cand := best[labID]
		lab := cand.lab
		pi := textOf(lab.PIUniqname)
		labMembers := membership[lab.LabID]

		a := association{
			computerID:       c.ComputerID,
			labID:            labID,
			method:           cand.method,
			ownerIsPI:        owner != "" && owner == pi,
			finOwnerIsPI:     finOwner != "" && finOwner == pi,
			ownerIsMember:    owner != "" && labMembers[owner],
			finOwnerIsMember: finOwner != "" && labMembers[finOwner],
			funcIsResearch:   strings.Contains(function, "research"),
			funcIsClassroom:  strings.Contains(function, "classroom") || strings.Contains(function, "instruction"),
		}
		if cand.method == MethodADOuNested {
			a.matchedOU = textOf(lab.ADOuDN)
		}
		switch cand.method {
		case MethodOwnerIsPI, MethodOwnerMember:
			a.matchedUser = owner
		case MethodFinOwnerIsPI:
			a.matchedUser = finOwner
		case MethodLastUserInLab:
			a.matchedUser = lastUser
		case MethodNameHasPI:
			a.matchedUser = pi
		}

		inLabOU := lab.HasADOu && dn != "" &&
			strings.Contains(dn, strings.ToLower(textOf(lab.ADOuDN)))
		nameHasPI := pi != "" && name != "" && strings.Contains(name, pi)

		score := methodBase[cand.method]

		// Bonuses for supporting evidence beyond the base method.
		if a.finOwnerIsPI && cand.method != MethodFinOwnerIsPI {
			score += 0.15
		}
		if a.ownerIsPI && cand.method != MethodOwnerIsPI {
			score += 0.12
		}
		if inLabOU && cand.method != MethodADOuNested {
			score += 0.10
		}
		if nameHasPI && cand.method != MethodNameHasPI {
			score += 0.08
		}
		if a.funcIsResearch {
			score += 0.05
		} else if a.funcIsClassroom {
			score += 0.03
		}

		// Penalties for contradicting evidence.
		if owner != "" && !a.ownerIsPI && !a.ownerIsMember {
			score -= 0.10
			a.qualityFlags = append(a.qualityFlags, "owner_not_affiliated")
		}
		if finOwner != "" && !a.finOwnerIsPI && !a.finOwnerIsMember {
			score -= 0.08
			a.qualityFlags = append(a.qualityFlags, "fin_owner_not_affiliated")
		}
		switch {
		case function == "":
			a.qualityFlags = append(a.qualityFlags, "no_function")
		case strings.Contains(function, "admin") || strings.Contains(function, "staff"):
			score -= 0.12
			a.qualityFlags = append(a.qualityFlags, "admin_function")
		case strings.Contains(function, "development") || strings.Contains(function, "testing"):
			score -= 0.12
			a.qualityFlags = append(a.qualityFlags, "dev_function")
		case !a.funcIsResearch && !a.funcIsClassroom:
			score -= 0.05
		}

		if tier2Methods[cand.method] {
			score = clamp(score, tier2Floor, tier2Ceiling)
		} else {
			score = clamp(score, tier1Floor, tier1Ceiling)
		}
		a.confidence = score

		if score < 0.40 {
			a.qualityFlags = append(a.qualityFlags, "low_confidence")
		}
		if score >= 0.90 {
			a.qualityFlags = append(a.qualityFlags, "high_confidence")
		}
		if a.ownerIsPI && a.finOwnerIsPI {
			a.qualityFlags = append(a.qualityFlags, "fully_pi_owned")
		}

		out = append(out, a)
	}
	return out
}

// markPrimaries flags each computer's highest-confidence association; ties
// break toward the lexically smaller lab_id.
func markPrimaries(all []association) {
	bestIdx := map[string]int{}
	for i := range all {
		a := &all[i]
		j, ok := bestIdx[a.computerID]
		if !ok {
			bestIdx[a.computerID] = i
			continue
		}
		b := &all[j]
		if a.confidence > b.confidence ||
			(a.confidence == b.confidence && a.labID < b.labID) {
			bestIdx[a.computerID] = i
		}
	}
	for _, i := range bestIdx {
		all[i].isPrimary = true
	}
}

// propagatePrimaries mirrors association results onto silver.computers.
func (r *Runner) propagatePrimaries(ctx context.Context, all []association) error {
	counts := map[string]int{}
	primary := map[string]*association{}
	for i := range all {
		counts[all[i].computerID]++
		if all[i].isPrimary {
			primary[all[i].computerID] = &all[i]
		}
	}

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE silver.computers
		SET primary_lab_id = NULL, primary_lab_method = NULL, lab_association_count = 0
		WHERE primary_lab_id IS NOT NULL OR lab_association_count != 0`)

	computerIDs := make([]string, 0, len(primary))
	for id := range primary {
		computerIDs = append(computerIDs, id)
	}
	sort.Strings(computerIDs)
	for _, id := range computerIDs {
		p := primary[id]
		batch.Queue(`UPDATE silver.computers
			SET primary_lab_id = $2, primary_lab_method = $3, lab_association_count = $4
			WHERE computer_id = $1`,
			id, p.labID, p.method, counts[id])
	}

	results := r.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to propagate primary lab: %w", err)
		}
	}
	return nil
}

func (r *Runner) loadAssociationInputs(ctx context.Context) ([]associationInput, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT computer_id, computer_name, distinguished_name, owner_uniqname,
		       financial_owner_uniqname, last_user, function_name
		FROM silver.computers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load computers for association: %w", err)
	}
	return collect(rows, func(rs pgx.Rows) (associationInput, error) {
		var c associationInput
		err := rs.Scan(&c.ComputerID, &c.ComputerName, &c.DistinguishedName,
			&c.OwnerUniqname, &c.FinOwnerUniqname, &c.LastUser, &c.FunctionName)
		return c, err
	})
}
