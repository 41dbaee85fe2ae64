package silver

import (
	"testing"
)

func TestExtractUniqname_FromComputerName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"LSA-CHEM-KERBY01", "kerby"},
		{"CHEM-KERBY", "kerby"},
		{"kerby-laptop", "laptop"}, // last segment wins even when wrong
		{"LSA-CHEM-LOANER12", "loaner"},
		{"PODIUM-A101", ""},    // digits only after stripping leaves "a"
		{"LSA-CHEM-PRINTQ99X", ""}, // 9 letters, too long
	}
	for _, c := range cases {
		if got := ExtractUniqname(c.name, ""); got != c.want {
			t.Errorf("ExtractUniqname(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestExtractUniqname_FromDescription(t *testing.T) {
	got := ExtractUniqname("LAB-PC-2024", "Primary user: kerby, Chemistry")
	if got != "kerby" {
		t.Errorf("Expected 'kerby' from description marker, got %q", got)
	}

	got = ExtractUniqname("LAB-PC-2024", "owner: ALICE@umich.edu")
	if got != "alice" {
		t.Errorf("Expected 'alice' from owner marker, got %q", got)
	}

	if got := ExtractUniqname("LAB-PC-2024", "shared classroom machine"); got != "" {
		t.Errorf("Expected no uniqname from an unmarked description, got %q", got)
	}
}
