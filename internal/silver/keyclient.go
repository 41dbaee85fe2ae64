package silver

import (
	"fmt"
	"sort"
	"time"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/storage"
)

// The inventory agent reports one record per network interface. The
// projector folds every NIC sharing (computer_name, serial_number) into one
// Silver row: MAC/IP arrays ordered most-recently-active first, scalars
// from the most recently active NIC, MAX over activity timestamps, MIN over
// base_audit. Because one changed NIC invalidates a row built from its
// unchanged siblings, this transformer always runs against the full Bronze
// scan (FullScanAlways).

var KeyClientComputersSpec = storage.UpsertSpec{
	Table:      "silver.key_client_computers",
	KeyColumns: []string{"computer_key"},
	Columns: []string{
		"computer_key", "computer_name", "serial_number",
		"primary_mac_address", "mac_addresses", "ip_addresses", "nic_count",
		"last_user", "os_name", "os_version", "manufacturer", "model",
		"memory_mb", "last_session", "last_inventory", "base_audit",
		"raw_ids", "entity_hash", "source_system", "raw_id", "ingestion_run_id",
	},
}

type keyClientProjector struct{}

type nicRecord struct {
	entity      *storage.RawEntity
	mac         string
	ip          string
	lastSession time.Time
}

func (keyClientProjector) Project(entities []*storage.RawEntity) ([]Row, []error) {
	var errs []error
	groups := map[string][]nicRecord{}
	var order []string

	for _, e := range entities {
		name := rawString(e.RawData, "Name")
		serial := rawString(e.RawData, "OEM SN")
		if name == "" && serial == "" {
			errs = append(errs, fmt.Errorf("inventory record %s has neither name nor serial", e.ExternalID))
			continue
		}
		key := hashing.NormalizeName(name) + "|" + hashing.NormalizeSerial(serial)

		nic := nicRecord{
			entity: e,
			mac:    hashing.NormalizeMAC(rawString(e.RawData, "MAC Address")),
			ip:     rawString(e.RawData, "IP Address"),
		}
		if t := nullTime(e.RawData, "Last Session"); t != nil {
			nic.lastSession = t.(time.Time)
		}

		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], nic)
	}

	var rows []Row
	for _, key := range order {
		nics := groups[key]

		// Most recently active NIC first; ties fall back to raw_id so the
		// ordering is stable across runs.
		sort.SliceStable(nics, func(i, j int) bool {
			if !nics[i].lastSession.Equal(nics[j].lastSession) {
				return nics[i].lastSession.After(nics[j].lastSession)
			}
			return nics[i].entity.RawID > nics[j].entity.RawID
		})

		primary := nics[0].entity
		values := map[string]any{
			"computer_key":  key,
			"computer_name": nullString(primary.RawData, "Name"),
			"serial_number": nullString(primary.RawData, "OEM SN"),
			"last_user":     nullUniqname(primary.RawData, "Last User"),
			"os_name":       nullString(primary.RawData, "OS"),
			"os_version":    nullString(primary.RawData, "OS Version"),
			"manufacturer":  nullString(primary.RawData, "Manufacturer"),
			"model":         nullString(primary.RawData, "Model"),
			"memory_mb":     nullInt64(primary.RawData, "Memory"),
			"nic_count":     len(nics),
			"raw_id":        primary.RawID,
		}

		var macs, ips []string
		var rawIDs []int64
		var lastSession, lastInventory, baseAudit any
		for _, nic := range nics {
			if nic.mac != "" && !containsString(macs, nic.mac) {
				macs = append(macs, nic.mac)
			}
			if nic.ip != "" && !containsString(ips, nic.ip) {
				ips = append(ips, nic.ip)
			}
			rawIDs = append(rawIDs, nic.entity.RawID)

			lastSession = maxTime(lastSession, nullTime(nic.entity.RawData, "Last Session"))
			lastInventory = maxTime(lastInventory, nullTime(nic.entity.RawData, "Last Inventory"))
			baseAudit = minTime(baseAudit, nullTime(nic.entity.RawData, "Base Audit"))
		}

		values["mac_addresses"] = nilIfEmptyList(macs)
		values["ip_addresses"] = nilIfEmptyList(ips)
		values["primary_mac_address"] = nil
		if len(macs) > 0 {
			values["primary_mac_address"] = macs[0]
		}
		values["last_session"] = lastSession
		values["last_inventory"] = lastInventory
		values["base_audit"] = baseAudit
		values["raw_ids"] = rawIDs

		rows = append(rows, Row{Key: key, Values: values})
	}
	return rows, errs
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func maxTime(current, candidate any) any {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.(time.Time).After(current.(time.Time)) {
		return candidate
	}
	return current
}

func minTime(current, candidate any) any {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.(time.Time).Before(current.(time.Time)) {
		return candidate
	}
	return current
}
