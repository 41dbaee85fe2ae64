package silver

import (
	"strings"
)

// OUHierarchy is the organizational-unit breakdown of an LDAP DN, ordered
// leaf to root in Path. The named positions are extracted from the root end
// so shallow DNs leave the deeper slots empty.
type OUHierarchy struct {
	Path             []string
	Depth            int
	ImmediateParent  string
	Root             string
	OrganizationType string
	Organization     string
	Category         string
	Division         string
	Department       string
	Subdepartment    string
}

// ParseOUHierarchy splits a DN into its OU chain. The leading CN RDN and the
// trailing DC components are dropped; what remains is the OU path leaf→root.
// leafIsOU marks objects that are themselves OUs (the lab OU case), whose
// immediate parent is one step further up the chain.
func ParseOUHierarchy(dn string, leafIsOU bool) OUHierarchy {
	var path []string
	for _, rdn := range splitDN(dn) {
		name, value, ok := splitRDN(rdn)
		if !ok {
			continue
		}
		if strings.EqualFold(name, "OU") {
			path = append(path, value)
		}
	}

	h := OUHierarchy{Path: path, Depth: len(path)}
	if len(path) == 0 {
		return h
	}

	// Named slots count from the root end.
	fromRoot := func(n int) string {
		if n > len(path) {
			return ""
		}
		return path[len(path)-n]
	}
	h.Root = fromRoot(1)
	h.OrganizationType = fromRoot(2)
	h.Organization = fromRoot(3)
	h.Category = fromRoot(4)
	h.Division = fromRoot(5)
	h.Department = fromRoot(6)
	h.Subdepartment = fromRoot(7)

	if leafIsOU {
		if len(path) > 1 {
			h.ImmediateParent = path[1]
		}
	} else {
		h.ImmediateParent = path[0]
	}
	return h
}

// apply stamps the hierarchy into a projected row's ou_* columns.
func (h OUHierarchy) apply(values map[string]any) {
	values["ou_full_path"] = nilIfEmptyList(h.Path)
	values["ou_depth"] = h.Depth
	values["ou_immediate_parent"] = nilIfEmpty(h.ImmediateParent)
	values["ou_root"] = nilIfEmpty(h.Root)
	values["ou_organization_type"] = nilIfEmpty(h.OrganizationType)
	values["ou_organization"] = nilIfEmpty(h.Organization)
	values["ou_category"] = nilIfEmpty(h.Category)
	values["ou_division"] = nilIfEmpty(h.Division)
	values["ou_department"] = nilIfEmpty(h.Department)
	values["ou_subdepartment"] = nilIfEmpty(h.Subdepartment)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfEmptyList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return list
}

// ouColumns is the shared column tail for tables carrying an OU breakdown.
var ouColumns = []string{
	"ou_full_path", "ou_depth", "ou_immediate_parent", "ou_root",
	"ou_organization_type", "ou_organization", "ou_category",
	"ou_division", "ou_department", "ou_subdepartment",
}

// splitDN splits a DN on unescaped commas.
func splitDN(dn string) []string {
	var parts []string
	var b strings.Builder
	escaped := false
	for _, r := range dn {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == ',':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, strings.TrimSpace(b.String()))
	}
	return parts
}

// splitRDN splits "OU=LSA Chemistry" into its attribute name and value.
func splitRDN(rdn string) (name, value string, ok bool) {
	eq := strings.IndexByte(rdn, '=')
	if eq <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(rdn[:eq]), strings.TrimSpace(rdn[eq+1:]), true
}
