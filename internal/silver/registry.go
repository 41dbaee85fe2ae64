package silver

import (
	"fmt"
	"sort"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
)

// NewRegistry returns the transformer for every Silver-source table, keyed
// "<source>/<entity>" to mirror the ingestion registry.
func NewRegistry() map[string]*Transformer {
	transformers := []*Transformer{
		{
			SourceSystem: bronze.SourceTDX,
			BronzeEntity: bronze.EntityUser,
			LedgerEntity: "tdx_users",
			Spec:         TDXUsersSpec,
			KeyColumn:    "tdx_user_uid",
			Projector:    tdxUserProjector{},
		},
		{
			SourceSystem: bronze.SourceTDX,
			BronzeEntity: bronze.EntityDepartment,
			LedgerEntity: "tdx_departments",
			Spec:         TDXDepartmentsSpec,
			KeyColumn:    "tdx_department_id",
			Projector:    tdxDepartmentProjector{},
		},
		{
			SourceSystem: bronze.SourceTDX,
			BronzeEntity: bronze.EntityAsset,
			LedgerEntity: "tdx_assets",
			Spec:         TDXAssetsSpec,
			KeyColumn:    "tdx_asset_id",
			Projector:    tdxAssetProjector{},
		},
		{
			SourceSystem: bronze.SourceAD,
			BronzeEntity: bronze.EntityUser,
			LedgerEntity: "ad_users",
			Spec:         ADUsersSpec,
			KeyColumn:    "sam_account_name",
			Projector:    adUserProjector{},
		},
		{
			SourceSystem: bronze.SourceAD,
			BronzeEntity: bronze.EntityGroup,
			LedgerEntity: "ad_groups",
			Spec:         ADGroupsSpec,
			KeyColumn:    "sam_account_name",
			Projector:    adGroupProjector{},
		},
		{
			SourceSystem: bronze.SourceAD,
			BronzeEntity: bronze.EntityComputer,
			LedgerEntity: "ad_computers",
			Spec:         ADComputersSpec,
			KeyColumn:    "computer_name",
			Projector:    adComputerProjector{},
		},
		{
			SourceSystem: bronze.SourceMCommunity,
			BronzeEntity: bronze.EntityUser,
			LedgerEntity: "mcommunity_users",
			Spec:         MCommunityUsersSpec,
			KeyColumn:    "uid",
			Projector:    mcommunityUserProjector{},
		},
		{
			SourceSystem: bronze.SourceMCommunity,
			BronzeEntity: bronze.EntityGroup,
			LedgerEntity: "mcommunity_groups",
			Spec:         MCommunityGroupsSpec,
			KeyColumn:    "group_email",
			Projector:    mcommunityGroupProjector{},
		},
		{
			SourceSystem: bronze.SourceUMAPI,
			BronzeEntity: bronze.EntityEmployment,
			LedgerEntity: "umapi_users",
			Spec:         UMAPIUsersSpec,
			KeyColumn:    "external_id",
			Projector:    umapiUserProjector{},
		},
		{
			SourceSystem: bronze.SourceUMAPI,
			BronzeEntity: bronze.EntityDepartment,
			LedgerEntity: "umapi_departments",
			Spec:         UMAPIDepartmentsSpec,
			KeyColumn:    "dept_id",
			Projector:    umapiDepartmentProjector{},
		},
		{
			SourceSystem:   bronze.SourceKeyClient,
			BronzeEntity:   bronze.EntityComputer,
			LedgerEntity:   "key_client_computers",
			Spec:           KeyClientComputersSpec,
			KeyColumn:      "computer_key",
			Projector:      keyClientProjector{},
			FullScanAlways: true,
		},
		{
			SourceSystem: bronze.SourceLabAwards,
			BronzeEntity: bronze.EntityLabAward,
			LedgerEntity: "lab_awards",
			Spec:         LabAwardsSpec,
			KeyColumn:    "award_key",
			Projector:    labAwardProjector{},
		},
	}

	byKey := make(map[string]*Transformer, len(transformers))
	for _, t := range transformers {
		byKey[t.SourceSystem+"/"+t.BronzeEntity] = t
	}
	return byKey
}

// Lookup resolves one transformer from the registry map.
func Lookup(registry map[string]*Transformer, sourceSystem, entityType string) (*Transformer, error) {
	t, ok := registry[sourceSystem+"/"+entityType]
	if !ok {
		keys := make([]string, 0, len(registry))
		for k := range registry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("no transformer registered for %s/%s (known: %v)", sourceSystem, entityType, keys)
	}
	return t, nil
}
