package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
)

// LDAPClient wraps a directory connection (Active Directory or MCommunity)
// behind paged searches that return raw attribute documents. Multi-valued
// attributes come back as []any and single-valued as string, matching what
// downstream normalization expects.
type LDAPClient struct {
	cfg *config.LDAPConfig
}

// NewLDAPClient creates an LDAP client. Connections are opened per search;
// the directory servers drop idle binds aggressively.
func NewLDAPClient(cfg *config.LDAPConfig) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

func (c *LDAPClient) connect() (*ldap.Conn, error) {
	conn, err := ldap.DialURL(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ldap %s: %w", c.cfg.URL, err)
	}
	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.Password); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to bind ldap: %w", err)
		}
	}
	return conn, nil
}

// Search runs a paged search under baseDN (empty means the configured base)
// and returns one document per entry. The DN is stored under
// "distinguishedName" when the directory did not return it as an attribute.
func (c *LDAPClient) Search(ctx context.Context, baseDN, filter string, attributes []string) ([]map[string]any, error) {
	if baseDN == "" {
		baseDN = c.cfg.BaseDN
	}

	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		nil,
	)

	result, err := conn.SearchWithPaging(req, uint32(c.cfg.PageSize))
	if err != nil {
		return nil, fmt.Errorf("ldap search failed for %q: %w", filter, err)
	}

	docs := make([]map[string]any, 0, len(result.Entries))
	for _, entry := range result.Entries {
		doc := make(map[string]any, len(entry.Attributes)+1)
		doc["distinguishedName"] = entry.DN
		for _, attr := range entry.Attributes {
			switch len(attr.Values) {
			case 0:
				continue
			case 1:
				doc[attr.Name] = attr.Values[0]
			default:
				values := make([]any, len(attr.Values))
				for i, v := range attr.Values {
					values[i] = v
				}
				doc[attr.Name] = values
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SearchRecords is Search projected to Records keyed on idAttr, parsing the
// AD generalized-time modification attribute when named.
func (c *LDAPClient) SearchRecords(ctx context.Context, baseDN, filter string, attributes []string, idAttr, modifiedAttr string) ([]Record, error) {
	docs, err := c.Search(ctx, baseDN, filter, attributes)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		id := stringValue(doc[idAttr])
		if id == "" {
			// Directories occasionally carry entries without the key
			// attribute; fall back to the DN so the row still lands.
			id = stringValue(doc["distinguishedName"])
		}
		if id == "" {
			continue
		}
		rec := Record{ExternalID: id, Data: doc}
		if modifiedAttr != "" {
			if ts := stringValue(doc[modifiedAttr]); ts != "" {
				if parsed, err := ParseGeneralizedTime(ts); err == nil {
					rec.ModifiedAt = &parsed
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseGeneralizedTime parses the LDAP/AD generalized-time format
// YYYYMMDDHHMMSS(.0)?Z.
func ParseGeneralizedTime(s string) (time.Time, error) {
	for _, layout := range []string{"20060102150405Z", "20060102150405.0Z", "20060102150405-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable generalized time %q", s)
}
