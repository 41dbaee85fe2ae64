package hashing

import (
	"strings"
)

// NullUUID is the sentinel TDX emits for "no value" in UUID fields.
const NullUUID = "00000000-0000-0000-0000-000000000000"

// CleanString trims whitespace and collapses the single-space and empty
// string sentinels some sources use for "no value" into the empty string.
func CleanString(s string) string {
	trimmed := strings.TrimSpace(s)
	return trimmed
}

// NullableString returns nil for cleaned-empty strings, otherwise a pointer
// to the cleaned value.
func NullableString(s string) *string {
	cleaned := CleanString(s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// NormalizeMAC uppercases a MAC address and strips separator characters so
// addresses from different sources compare equal.
func NormalizeMAC(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case ':', '-', '.', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeUniqname lowercases and trims a uniqname or email local part.
func NormalizeUniqname(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if at := strings.IndexByte(s, '@'); at > 0 {
		s = s[:at]
	}
	return s
}

// NormalizeName lowercases and trims a hostname or display name for
// cross-source matching.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSerial trims and uppercases a hardware serial number.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeUUID treats the all-zero UUID as absent and returns "" for it.
func NormalizeUUID(s string) string {
	cleaned := CleanString(s)
	if strings.EqualFold(cleaned, NullUUID) {
		return ""
	}
	return cleaned
}
