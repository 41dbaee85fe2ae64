package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CSVSource reads lab-award exports. The newest file matching the glob is
// the current export; rows are tolerant of blank cells and currency
// formatting.
type CSVSource struct {
	glob string
}

// NewCSVSource creates a CSV source over a discovery glob.
func NewCSVSource(glob string) *CSVSource {
	return &CSVSource{glob: glob}
}

// List reads the newest export. AwardID alone is not unique across
// person/department, so the external id is the composite
// <AwardID>-<PersonUniqname>-<PersonApptDeptID>.
func (c *CSVSource) List(ctx context.Context, _ *time.Time) ([]Record, error) {
	path, err := c.newestFile()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv export: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // exports occasionally carry ragged rows

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv export %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := make(map[string]any, len(header))
		for i, col := range header {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			var value string
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			doc[col] = CleanCurrency(value)
		}

		awardID := stringValue(doc["AwardID"])
		uniqname := stringValue(doc["PersonUniqname"])
		deptID := stringValue(doc["PersonApptDeptID"])
		if awardID == "" {
			continue
		}
		doc["_source_file"] = filepath.Base(path)

		records = append(records, Record{
			ExternalID: awardID + "-" + uniqname + "-" + deptID,
			Data:       doc,
		})
	}
	return records, nil
}

func (c *CSVSource) newestFile() (string, error) {
	matches, err := filepath.Glob(c.glob)
	if err != nil {
		return "", fmt.Errorf("bad csv glob %q: %w", c.glob, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no csv export matches %q", c.glob)
	}

	var newest string
	var newestMtime time.Time
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestMtime) {
			newest = m
			newestMtime = fi.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable csv export matches %q", c.glob)
	}
	return newest, nil
}

// CleanCurrency strips currency formatting ("$1,234.50" -> "1234.50") while
// leaving non-monetary values untouched.
func CleanCurrency(s string) string {
	if !strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "($") {
		return s
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	cleaned := strings.NewReplacer("$", "", ",", "", "(", "", ")", "").Replace(s)
	cleaned = strings.TrimSpace(cleaned)
	if negative && cleaned != "" {
		cleaned = "-" + cleaned
	}
	return cleaned
}
