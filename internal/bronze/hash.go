package bronze

import (
	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/hashing"
)

// BasicHash computes the basic content hash for a document using this
// definition's whitelist. The ingester and the enricher share this method so
// their digests agree on identical source records.
func (d *Definition) BasicHash(data map[string]any) string {
	return hashing.BasicContentHash(data, d.BasicHashFields)
}

// EnrichedHash computes the enriched content hash: the basic set plus the
// detail-only fields.
func (d *Definition) EnrichedHash(data map[string]any) string {
	return hashing.EnrichedContentHash(data, d.BasicHashFields, d.DetailHashFields)
}

func (ing *Ingester) basicHash(data map[string]any) string {
	return ing.def.BasicHash(data)
}
