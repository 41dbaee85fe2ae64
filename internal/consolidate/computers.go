package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/bronze"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// ComputersSpec is the upsert shape for silver.computers. The primary-lab
// columns are owned by the lab associator, which updates them in place after
// every consolidation; the consolidator itself writes them as NULL/0 so the
// entity hash stays stable between association passes.
var ComputersSpec = storage.UpsertSpec{
	Table:      "silver.computers",
	KeyColumns: []string{"computer_id"},
	Columns: []string{
		"computer_id", "computer_name", "serial_numbers", "primary_serial",
		"mac_addresses", "primary_mac_address", "ip_addresses",
		"os_name", "os_version", "manufacturer", "model",
		"memory", "storage", "processor_count", "function_name",
		"owner_uniqname", "financial_owner_uniqname", "last_user",
		"owning_department_id", "distinguished_name", "ou_full_path",
		"tdx_asset_id", "last_seen", "has_recent_activity",
		"primary_lab_id", "primary_lab_method", "lab_association_count",
		"source_system", "data_quality_score", "quality_flags",
		"entity_hash", "ingestion_run_id",
	},
}

// recentActivityWindow bounds has_recent_activity.
const recentActivityWindow = 90 * 24 * time.Hour

// staleThreshold triggers the quality penalty for computers.
const staleThreshold = 180 * 24 * time.Hour

var computerGroupColumns = []string{
	"computer_id", "group_id", "group_dn", "group_cn", "source_system",
}

var computerAttributeColumns = []string{
	"computer_id", "attribute_name", "attribute_value", "source_system", "tdx_form_id",
}

// canonicalComputer collects the source rows matched to one physical machine.
type canonicalComputer struct {
	id  string
	ad  *ADComputerRow
	tdx []*TDXAssetRow
	kc  []*KeyClientComputerRow
}

// ConsolidateComputers merges AD computers, TDX assets, and inventory-agent
// records into silver.computers via a three-phase match (name, then MAC,
// then serial), then rebuilds the computer link tables. Owner references are
// only stored when the target user exists in silver.users.
func (r *Runner) ConsolidateComputers(ctx context.Context) (*Stats, error) {
	return r.runScoped(ctx, "computers", func(ctx context.Context, stats *Stats) error {
		adComputers, err := LoadADComputers(ctx, r.Pool)
		if err != nil {
			return err
		}
		assets, err := LoadTDXAssets(ctx, r.Pool)
		if err != nil {
			return err
		}
		kcComputers, err := LoadKeyClientComputers(ctx, r.Pool)
		if err != nil {
			return err
		}
		uidMap, err := TDXUserUIDMap(ctx, r.Pool)
		if err != nil {
			return err
		}
		knownUsers, err := KnownUniqnames(ctx, r.Pool)
		if err != nil {
			return err
		}
		deptMap, err := r.loadTDXDeptMap(ctx)
		if err != nil {
			return err
		}
		groupDNMap, err := r.loadGroupDNMap(ctx)
		if err != nil {
			return err
		}

		canonicals := matchComputers(adComputers, assets, kcComputers)

		var rows []row
		var groupRows, attributeRows [][]any

		for _, c := range canonicals {
			stats.Processed++
			values := mergeComputer(c, uidMap, knownUsers, deptMap, time.Now())
			rows = append(rows, row{key: c.id, values: values})

			if c.ad != nil {
				for _, dn := range c.ad.MemberOf {
					cn := dnLeafValue(dn)
					var groupID any
					if id, ok := groupDNMap[strings.ToLower(dn)]; ok {
						groupID = id
					}
					groupRows = append(groupRows, []any{
						c.id, groupID, dn, firstNonEmpty(cn), bronze.SourceAD,
					})
				}
			}

			attributeRows = append(attributeRows, tdxAttributeRows(c)...)
		}

		if err := r.upsertRows(ctx, ComputersSpec, "computer_id", rows, stats); err != nil {
			return err
		}
		if err := r.rebuild(ctx, "silver.computer_groups", computerGroupColumns, groupRows); err != nil {
			return err
		}
		return r.rebuild(ctx, "silver.computer_attributes", computerAttributeColumns, attributeRows)
	})
}

// matchComputers groups source rows into canonical computers. Phase 1 joins
// on normalized name; phases 2 and 3 fold the remaining nameless TDX and
// inventory rows in by MAC and serial.
func matchComputers(adComputers []ADComputerRow, assets []TDXAssetRow, kcComputers []KeyClientComputerRow) []*canonicalComputer {
	byName := map[string]*canonicalComputer{}
	var order []*canonicalComputer

	getByName := func(name string) *canonicalComputer {
		if c, ok := byName[name]; ok {
			return c
		}
		c := &canonicalComputer{id: name}
		byName[name] = c
		order = append(order, c)
		return c
	}

	for i := range adComputers {
		name := hashing.NormalizeName(adComputers[i].ComputerName)
		if name == "" {
			continue
		}
		getByName(name).ad = &adComputers[i]
	}

	var namelessAssets []*TDXAssetRow
	for i := range assets {
		name := hashing.NormalizeName(textOf(assets[i].Name))
		if name == "" {
			namelessAssets = append(namelessAssets, &assets[i])
			continue
		}
		c := getByName(name)
		c.tdx = append(c.tdx, &assets[i])
	}

	var namelessKC []*KeyClientComputerRow
	for i := range kcComputers {
		name := hashing.NormalizeName(textOf(kcComputers[i].ComputerName))
		if name == "" {
			namelessKC = append(namelessKC, &kcComputers[i])
			continue
		}
		c := getByName(name)
		c.kc = append(c.kc, &kcComputers[i])
	}

	// Phase 2: MAC. Index every MAC already attached to a canonical row.
	byMAC := map[string]*canonicalComputer{}
	indexMACs := func(c *canonicalComputer) {
		for _, a := range c.tdx {
			if mac := hashing.NormalizeMAC(textOf(a.MACAddress)); mac != "" {
				byMAC[mac] = c
			}
		}
		for _, k := range c.kc {
			for _, mac := range k.MACAddresses {
				if normalized := hashing.NormalizeMAC(mac); normalized != "" {
					byMAC[normalized] = c
				}
			}
		}
	}
	for _, c := range order {
		indexMACs(c)
	}

	matchMAC := func(macs []string) *canonicalComputer {
		for _, mac := range macs {
			if c, ok := byMAC[hashing.NormalizeMAC(mac)]; ok {
				return c
			}
		}
		return nil
	}

	var serialAssets []*TDXAssetRow
	for _, a := range namelessAssets {
		if c := matchMAC([]string{textOf(a.MACAddress)}); c != nil {
			c.tdx = append(c.tdx, a)
			continue
		}
		serialAssets = append(serialAssets, a)
	}
	var serialKC []*KeyClientComputerRow
	for _, k := range namelessKC {
		if c := matchMAC(k.MACAddresses); c != nil {
			c.kc = append(c.kc, k)
			continue
		}
		serialKC = append(serialKC, k)
	}

	// Phase 3: serial.
	bySerial := map[string]*canonicalComputer{}
	for _, c := range order {
		for _, a := range c.tdx {
			if s := hashing.NormalizeSerial(textOf(a.SerialNumber)); s != "" {
				bySerial[s] = c
			}
		}
		for _, k := range c.kc {
			if s := hashing.NormalizeSerial(textOf(k.SerialNumber)); s != "" {
				bySerial[s] = c
			}
		}
	}

	for _, a := range serialAssets {
		serial := hashing.NormalizeSerial(textOf(a.SerialNumber))
		if c, ok := bySerial[serial]; ok && serial != "" {
			c.tdx = append(c.tdx, a)
			continue
		}
		c := &canonicalComputer{id: fallbackComputerID(serial, textOf(a.MACAddress), fmt.Sprintf("tdx-%d", a.ID))}
		c.tdx = append(c.tdx, a)
		order = append(order, c)
		if serial != "" {
			bySerial[serial] = c
		}
	}
	for _, k := range serialKC {
		serial := hashing.NormalizeSerial(textOf(k.SerialNumber))
		if c, ok := bySerial[serial]; ok && serial != "" {
			c.kc = append(c.kc, k)
			continue
		}
		var mac string
		if len(k.MACAddresses) > 0 {
			mac = k.MACAddresses[0]
		}
		c := &canonicalComputer{id: fallbackComputerID(serial, mac, "kc-"+k.ComputerKey)}
		c.kc = append(c.kc, k)
		order = append(order, c)
		if serial != "" {
			bySerial[serial] = c
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })
	return order
}

func fallbackComputerID(serial, mac, last string) string {
	if serial != "" {
		return "serial-" + strings.ToLower(serial)
	}
	if normalized := hashing.NormalizeMAC(mac); normalized != "" {
		return "mac-" + strings.ToLower(normalized)
	}
	return last
}

func mergeComputer(c *canonicalComputer, uidMap map[string]string, knownUsers map[string]bool, deptMap map[int64]string, now time.Time) map[string]any {
	var tdx *TDXAssetRow
	if len(c.tdx) > 0 {
		tdx = c.tdx[0]
	}
	var kc *KeyClientComputerRow
	if len(c.kc) > 0 {
		kc = c.kc[0]
	}

	var sourceNames []string
	if c.ad != nil {
		sourceNames = append(sourceNames, bronze.SourceAD)
	}
	if tdx != nil {
		sourceNames = append(sourceNames, bronze.SourceTDX)
	}
	if kc != nil {
		sourceNames = append(sourceNames, bronze.SourceKeyClient)
	}
	sort.Strings(sourceNames)

	// Display name: AD → TDX → inventory.
	var adName, tdxName, kcName string
	if c.ad != nil {
		adName = c.ad.ComputerName
	}
	if tdx != nil {
		tdxName = textOf(tdx.Name)
	}
	if kc != nil {
		kcName = textOf(kc.ComputerName)
	}

	var serials, macs, ips []string
	for _, a := range c.tdx {
		serials = appendUnique(serials, hashing.NormalizeSerial(textOf(a.SerialNumber)))
		macs = appendUnique(macs, hashing.NormalizeMAC(textOf(a.MACAddress)))
		if ip := textOf(a.ReservedIP); ip != "" {
			ips = appendUnique(ips, ip)
		}
	}
	for _, k := range c.kc {
		serials = appendUnique(serials, hashing.NormalizeSerial(textOf(k.SerialNumber)))
		for _, mac := range k.MACAddresses {
			macs = appendUnique(macs, hashing.NormalizeMAC(mac))
		}
		for _, ip := range k.IPAddresses {
			ips = appendUnique(ips, ip)
		}
	}

	var lastSeen *time.Time
	consider := func(t *time.Time) {
		if t != nil && (lastSeen == nil || t.After(*lastSeen)) {
			lastSeen = t
		}
	}
	if c.ad != nil {
		consider(c.ad.LastLogon)
	}
	for _, a := range c.tdx {
		consider(a.LastInventoried)
	}
	for _, k := range c.kc {
		consider(k.LastSession)
		consider(k.LastInventory)
	}

	// Owner resolution with FK discipline: a uniqname is stored only when
	// it exists in silver.users.
	var owner, finOwner, lastUser string
	if tdx != nil {
		if uid := textOf(tdx.OwningCustomerUID); uid != "" {
			owner = uidMap[uid]
		}
		if uid := textOf(tdx.FinancialOwnerUID); uid != "" {
			finOwner = uidMap[uid]
		}
	}
	if kc != nil {
		lastUser = hashing.NormalizeUniqname(textOf(kc.LastUser))
	}
	if owner == "" && lastUser != "" && knownUsers[lastUser] {
		owner = lastUser
	}
	if owner != "" && !knownUsers[owner] {
		owner = ""
	}
	if finOwner != "" && !knownUsers[finOwner] {
		finOwner = ""
	}

	var owningDept string
	if tdx != nil && tdx.OwningDepartmentID != nil {
		owningDept = deptMap[*tdx.OwningDepartmentID]
	}

	var osName, osVersion, manufacturer, model, memory, storageSize, processors string
	if tdx != nil {
		osName = textOf(tdx.OSName)
		manufacturer = textOf(tdx.ManufacturerName)
		model = textOf(tdx.ProductModelName)
		memory = textOf(tdx.MemoryGB)
		storageSize = textOf(tdx.StorageGB)
		processors = textOf(tdx.ProcessorCount)
	}
	if kc != nil {
		osName = pick(osName, textOf(kc.OSName))
		osVersion = textOf(kc.OSVersion)
		manufacturer = pick(manufacturer, textOf(kc.Manufacturer))
		model = pick(model, textOf(kc.Model))
		if memory == "" && kc.MemoryMB != nil {
			memory = fmt.Sprintf("%d MB", *kc.MemoryMB)
		}
	}
	if c.ad != nil {
		osName = pick(osName, textOf(c.ad.OperatingSystem))
		osVersion = pick(osVersion, textOf(c.ad.OSVersion))
	}

	values := map[string]any{
		"computer_id":              c.id,
		"computer_name":            firstNonEmpty(adName, tdxName, kcName),
		"serial_numbers":           listOrNil(serials),
		"primary_serial":           firstOrNil(serials),
		"mac_addresses":            listOrNil(macs),
		"primary_mac_address":      firstOrNil(macs),
		"ip_addresses":             listOrNil(ips),
		"os_name":                  firstNonEmpty(osName),
		"os_version":               firstNonEmpty(osVersion),
		"manufacturer":             firstNonEmpty(manufacturer),
		"model":                    firstNonEmpty(model),
		"memory":                   firstNonEmpty(memory),
		"storage":                  firstNonEmpty(storageSize),
		"processor_count":          firstNonEmpty(processors),
		"function_name":            nil,
		"owner_uniqname":           firstNonEmpty(owner),
		"financial_owner_uniqname": firstNonEmpty(finOwner),
		"last_user":                firstNonEmpty(lastUser),
		"owning_department_id":     firstNonEmpty(owningDept),
		"distinguished_name":       nil,
		"ou_full_path":             nil,
		"tdx_asset_id":             nil,
		"last_seen":                nil,
		"has_recent_activity":      false,
		"primary_lab_id":           nil,
		"primary_lab_method":       nil,
		"lab_association_count":    0,
		"source_system":            strings.Join(sourceNames, "+"),
	}
	if tdx != nil {
		values["tdx_asset_id"] = tdx.ID
		values["function_name"] = firstNonEmpty(textOf(tdx.FunctionName))
	}
	if c.ad != nil {
		values["distinguished_name"] = firstNonEmpty(textOf(c.ad.DistinguishedName))
		values["ou_full_path"] = listOrNil(c.ad.OUFullPath)
	}
	if lastSeen != nil {
		values["last_seen"] = lastSeen.UTC()
		values["has_recent_activity"] = now.Sub(*lastSeen) <= recentActivityWindow
	}

	q := newQualityScore()
	if len(serials) == 0 {
		q.penalize(0.30, "missing_serial")
	}
	if values["computer_name"] == nil {
		q.penalize(0.25, "missing_name")
	}
	if owner == "" {
		q.penalize(0.10, "missing_owner")
	}
	if len(sourceNames) == 1 {
		q.penalize(0.15, "single_source")
	}
	if lastSeen == nil || now.Sub(*lastSeen) > staleThreshold {
		q.penalize(0.10, "stale")
	}
	values["data_quality_score"] = q.Score()
	values["quality_flags"] = q.Flags()

	return values
}

func tdxAttributeRows(c *canonicalComputer) [][]any {
	var rows [][]any
	seen := map[string]bool{}
	for _, a := range c.tdx {
		for _, attr := range a.Attributes {
			name, _ := attr["Name"].(string)
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			value, _ := attr["ValueText"].(string)
			if value == "" {
				value, _ = attr["Value"].(string)
			}
			var formID any
			if id, ok := attr["ID"].(float64); ok {
				formID = int64(id)
			}
			rows = append(rows, []any{
				c.id, name, firstNonEmpty(value), bronze.SourceTDX, formID,
			})
		}
	}
	return rows
}

func (r *Runner) loadTDXDeptMap(ctx context.Context) (map[int64]string, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT tdx_department_id, department_id FROM silver.departments
		WHERE tdx_department_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tdx department map: %w", err)
	}
	defer rows.Close()

	m := map[int64]string{}
	for rows.Next() {
		var tdxID int64
		var deptID string
		if err := rows.Scan(&tdxID, &deptID); err != nil {
			return nil, fmt.Errorf("failed to scan department map: %w", err)
		}
		m[tdxID] = deptID
	}
	return m, rows.Err()
}

func (r *Runner) loadGroupDNMap(ctx context.Context) (map[string]string, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT lower(distinguished_name), group_id FROM silver.groups
		WHERE distinguished_name IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load group dn map: %w", err)
	}
	defer rows.Close()

	m := map[string]string{}
	for rows.Next() {
		var dn, id string
		if err := rows.Scan(&dn, &id); err != nil {
			return nil, fmt.Errorf("failed to scan group dn map: %w", err)
		}
		m[dn] = id
	}
	return m, rows.Err()
}

func pick(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func firstOrNil(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return list[0]
}
