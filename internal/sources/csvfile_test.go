package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"$1,234.50", "1234.50"},
		{"($500.00)", "-500.00"},
		{"$0", "0"},
		{"1234.50", "1234.50"},
		{"Kerby Lab", "Kerby Lab"},
		{"", ""},
	}
	for _, c := range cases {
		if got := CleanCurrency(c.in); got != c.want {
			t.Errorf("CleanCurrency(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCSVSource_List(t *testing.T) {
	dir := t.TempDir()
	csv := "AwardID,PersonUniqname,PersonApptDeptID,TotalDirect\n" +
		"AWD001,kerby,173500,\"$1,000.00\"\n" +
		"AWD001,alice,173500,\"$1,000.00\"\n" +
		",ghost,173500,$5.00\n"
	if err := os.WriteFile(filepath.Join(dir, "awards_2024.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewCSVSource(filepath.Join(dir, "awards_*.csv"))
	records, err := src.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records (blank AwardID skipped), got %d", len(records))
	}
	if records[0].ExternalID != "AWD001-kerby-173500" {
		t.Errorf("Expected composite external id, got %q", records[0].ExternalID)
	}
	if records[0].Data["TotalDirect"] != "1000.00" {
		t.Errorf("Expected currency cleaned, got %v", records[0].Data["TotalDirect"])
	}
	if records[0].Data["_source_file"] != "awards_2024.csv" {
		t.Errorf("Expected source file recorded, got %v", records[0].Data["_source_file"])
	}
}

func TestCSVSource_NoMatches(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "nothing_*.csv"))
	if _, err := src.List(context.Background(), nil); err == nil {
		t.Errorf("Expected an error when no export matches the glob")
	}
}
