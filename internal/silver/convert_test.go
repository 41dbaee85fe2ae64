package silver

import (
	"testing"
	"time"
)

func TestParseTime_ZeroDateMapsToNil(t *testing.T) {
	if got := parseTime("0001-01-01T00:00:00Z"); got != nil {
		t.Errorf("Expected the TDX zero date to map to nil, got %v", got)
	}
}

func TestParseTime_AcceptedLayouts(t *testing.T) {
	cases := []string{
		"2024-01-15T09:30:00Z",
		"2024-01-15T09:30:00.123Z",
		"2024-01-15T09:30:00",
		"2024-01-15 09:30:00",
		"2024-01-15",
		"1/15/2024",
	}
	for _, in := range cases {
		got := parseTime(in)
		if got == nil {
			t.Errorf("Expected %q to parse, got nil", in)
			continue
		}
		if got.(time.Time).Year() != 2024 {
			t.Errorf("Expected year 2024 from %q, got %v", in, got)
		}
	}
}

func TestNullADTime_GeneralizedTime(t *testing.T) {
	doc := map[string]any{"whenCreated": "20240115093000.0Z"}
	got := nullADTime(doc, "whenCreated")
	if got == nil {
		t.Fatalf("Expected generalized time to parse, got nil")
	}
	want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	if !got.(time.Time).Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNullFiletime(t *testing.T) {
	// 2024-01-01T00:00:00Z in 100ns ticks since 1601.
	ticks := int64(filetimeEpochOffset) + time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()/100

	doc := map[string]any{"lastLogonTimestamp": float64(ticks)}
	got := nullFiletime(doc, "lastLogonTimestamp")
	if got == nil {
		t.Fatalf("Expected a timestamp, got nil")
	}
	if y := got.(time.Time).Year(); y != 2024 {
		t.Errorf("Expected year 2024, got %d", y)
	}

	if got := nullFiletime(map[string]any{"lastLogonTimestamp": float64(0)}, "lastLogonTimestamp"); got != nil {
		t.Errorf("Expected zero FILETIME to map to nil, got %v", got)
	}
	if got := nullFiletime(map[string]any{"lastLogonTimestamp": "9223372036854775807"}, "lastLogonTimestamp"); got != nil {
		t.Errorf("Expected the never-expires sentinel to map to nil, got %v", got)
	}
}

func TestNullEnabled_AccountDisableBit(t *testing.T) {
	// 512 = normal account, 514 = normal account + ACCOUNTDISABLE.
	if got := nullEnabled(map[string]any{"userAccountControl": float64(512)}, "userAccountControl"); got != true {
		t.Errorf("Expected UAC 512 to be enabled, got %v", got)
	}
	if got := nullEnabled(map[string]any{"userAccountControl": float64(514)}, "userAccountControl"); got != false {
		t.Errorf("Expected UAC 514 to be disabled, got %v", got)
	}
	if got := nullEnabled(map[string]any{}, "userAccountControl"); got != nil {
		t.Errorf("Expected missing UAC to map to nil, got %v", got)
	}
}

func TestStringList_SingleAndMultiValued(t *testing.T) {
	single := stringList(map[string]any{"member": "cn=one"}, "member")
	if len(single) != 1 || single[0] != "cn=one" {
		t.Errorf("Expected single-valued attribute to become a one-element list, got %v", single)
	}

	multi := stringList(map[string]any{"member": []any{"cn=one", "cn=two", ""}}, "member")
	if len(multi) != 2 {
		t.Errorf("Expected empty values dropped from multi-valued attribute, got %v", multi)
	}

	if got := stringList(map[string]any{}, "member"); got != nil {
		t.Errorf("Expected nil for an absent attribute, got %v", got)
	}
}

func TestNullBool_IdentityAPIActiveCode(t *testing.T) {
	if got := nullBool(map[string]any{"EmplStatus": "A"}, "EmplStatus"); got != true {
		t.Errorf("Expected status 'A' to mean active, got %v", got)
	}
	if got := nullBool(map[string]any{"EmplStatus": "T"}, "EmplStatus"); got != nil {
		t.Errorf("Expected unrecognized status to map to nil, got %v", got)
	}
	if got := nullBool(map[string]any{"flag": float64(1)}, "flag"); got != true {
		t.Errorf("Expected numeric 1 to be true, got %v", got)
	}
}

func TestNullString_TrimsAndNils(t *testing.T) {
	if got := nullString(map[string]any{"Name": "  host01  "}, "Name"); got != "host01" {
		t.Errorf("Expected trimmed string, got %v", got)
	}
	if got := nullString(map[string]any{"Name": "   "}, "Name"); got != nil {
		t.Errorf("Expected whitespace-only string to map to nil, got %v", got)
	}
	if got := nullString(map[string]any{"ID": float64(42)}, "ID"); got != "42" {
		t.Errorf("Expected numeric value rendered as string, got %v", got)
	}
}
