package silver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
)

// Converters from raw JSONB documents (map[string]any decoded by pgx, so
// numbers arrive as float64) into Silver column values. Every converter
// returns nil for absent or empty inputs so the column lands as SQL NULL.

func rawString(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return hashing.CleanString(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return hashing.CleanString(fmt.Sprintf("%v", v))
	}
}

func nullString(doc map[string]any, key string) any {
	s := rawString(doc, key)
	if s == "" {
		return nil
	}
	return s
}

func nullBool(doc map[string]any, key string) any {
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "a": // "A" is the identity API's active status
			return true
		case "false", "0", "no":
			return false
		}
	case float64:
		return v != 0
	}
	return nil
}

func nullInt64(doc map[string]any, key string) any {
	switch v := doc[key].(type) {
	case float64:
		return int64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return nil
}

func nullInt(doc map[string]any, key string) any {
	if v := nullInt64(doc, key); v != nil {
		return int(v.(int64))
	}
	return nil
}

func nullNumeric(doc map[string]any, key string) any {
	switch v := doc[key].(type) {
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return nil
}

// isoLayouts covers the timestamp shapes the REST sources emit.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006", // CSV exports
	"01/02/2006",
}

// parseTime parses an ISO-8601-ish timestamp. The TDX "zero date"
// 0001-01-01 means "never" and maps to nil.
func parseTime(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() <= 1 {
				return nil
			}
			return t.UTC()
		}
	}
	return nil
}

func nullTime(doc map[string]any, key string) any {
	s := rawString(doc, key)
	if s == "" {
		return nil
	}
	return parseTime(s)
}

// nullADTime parses an AD generalized-time value ("20240115093000.0Z").
func nullADTime(doc map[string]any, key string) any {
	s := rawString(doc, key)
	if s == "" {
		return nil
	}
	layouts := []string{"20060102150405Z", "20060102150405.0Z", "20060102150405-0700"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return nil
}

// nullFiletime parses an AD 100-nanosecond-intervals-since-1601 integer
// (lastLogonTimestamp). Zero and the max sentinel map to nil.
const filetimeEpochOffset = 116444736000000000 // 1601→1970 in 100ns ticks

func nullFiletime(doc map[string]any, key string) any {
	v := nullInt64(doc, key)
	if v == nil {
		return nil
	}
	ticks := v.(int64)
	if ticks <= 0 || ticks == 0x7FFFFFFFFFFFFFFF {
		return nil
	}
	return time.Unix(0, (ticks-filetimeEpochOffset)*100).UTC()
}

// stringList normalizes an LDAP attribute that may arrive single-valued
// (string) or multi-valued ([]any) into a string slice. Returns nil when
// absent so the JSONB column lands NULL instead of [].
func stringList(doc map[string]any, key string) []string {
	switch v := doc[key].(type) {
	case string:
		if s := hashing.CleanString(v); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if cleaned := hashing.CleanString(s); cleaned != "" {
					out = append(out, cleaned)
				}
			}
		}
		return out
	default:
		return nil
	}
}

func nullStringList(doc map[string]any, key string) any {
	list := stringList(doc, key)
	if list == nil {
		return nil
	}
	return list
}

// nullJSON passes a raw sub-document (Attributes array, Applications list)
// through to a JSONB column untouched.
func nullJSON(doc map[string]any, key string) any {
	v, ok := doc[key]
	if !ok || v == nil {
		return nil
	}
	return v
}

// uacAccountDisable is bit 2 of userAccountControl.
const uacAccountDisable = 0x2

// nullEnabled computes enabled/disabled from userAccountControl: enabled
// when the ACCOUNTDISABLE bit is clear.
func nullEnabled(doc map[string]any, key string) any {
	v := nullInt64(doc, key)
	if v == nil {
		return nil
	}
	return v.(int64)&uacAccountDisable == 0
}
