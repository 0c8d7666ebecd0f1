package qdrant

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// entryPayload flattens entry metadata into a point payload.
func entryPayload(m domain.EntryMetadata, tombstoned bool) map[string]any {
	return map[string]any{
		"source_id":     m.SourceID,
		"page":          int64(m.Page),
		"unit_index":    int64(m.UnitIndex),
		"text":          m.Text,
		"kind":          string(m.Kind),
		"document_name": m.DocumentName,
		"category":      m.Category,
		"criterion":     m.Criterion,
		"description":   m.Description,
		"type":          string(m.SourceKind),
		"run_id":        m.RunID,
		"tombstoned":    tombstoned,
	}
}

// entryFromPayload rebuilds an entry from a point payload.
func entryFromPayload(id int, payload map[string]*qdrant.Value) domain.IndexEntry {
	str := func(key string) string {
		return payload[key].GetStringValue()
	}
	return domain.IndexEntry{
		ID: id,
		Metadata: domain.EntryMetadata{
			TextUnit: domain.TextUnit{
				SourceID:  str("source_id"),
				Page:      int(payload["page"].GetIntegerValue()),
				UnitIndex: int(payload["unit_index"].GetIntegerValue()),
				Text:      str("text"),
				Kind:      domain.UnitKind(str("kind")),
			},
			DocumentName: str("document_name"),
			Category:     str("category"),
			Criterion:    str("criterion"),
			Description:  str("description"),
			SourceKind:   domain.SourceKind(str("type")),
			RunID:        str("run_id"),
		},
		Tombstoned: payload["tombstoned"].GetBoolValue(),
	}
}
