package consolidate

import (
	"strings"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
)

// Member identifier kinds produced by ParseIdentifier.
const (
	IdentUser    = "user"
	IdentGroup   = "group"
	IdentUnknown = "unknown"
)

var userContainers = []string{"ou=people", "ou=accounts", "ou=privileged"}
var groupContainers = []string{"ou=groups", "ou=user groups", "ou=mcommadsync"}

// groupPrefixes are naming conventions that mark a bare identifier as a
// group rather than a person.
var groupPrefixes = []string{"lsa-", "lsa_", "umich-", "its-"}

// ParseIdentifier classifies one member/owner identifier from a directory
// group. DN-shaped strings are classified by their containing OU; bare
// strings by naming convention, leaning user when ambiguous.
func ParseIdentifier(raw string) (id, kind string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", IdentUnknown
	}

	if strings.Contains(s, "=") {
		lower := strings.ToLower(s)
		leaf := dnLeafValue(s)
		if leaf == "" {
			return "", IdentUnknown
		}
		for _, container := range userContainers {
			if strings.Contains(lower, container) {
				return hashing.NormalizeUniqname(leaf), IdentUser
			}
		}
		for _, container := range groupContainers {
			if strings.Contains(lower, container) {
				return leaf, IdentGroup
			}
		}
		return "", IdentUnknown
	}

	lower := strings.ToLower(s)
	if strings.ContainsAny(s, " \t") {
		return s, IdentGroup
	}
	for _, prefix := range groupPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return s, IdentGroup
		}
	}
	return hashing.NormalizeUniqname(s), IdentUser
}

// dnLeafValue returns the value of the first RDN ("uid=kerby,..." → "kerby").
func dnLeafValue(dn string) string {
	comma := strings.IndexByte(dn, ',')
	first := dn
	if comma >= 0 {
		first = dn[:comma]
	}
	eq := strings.IndexByte(first, '=')
	if eq < 0 {
		return ""
	}
	return strings.TrimSpace(first[eq+1:])
}
