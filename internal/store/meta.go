package store

import (
	"encoding/json"
	"os"
	"time"
)

// syncMeta is the per-collection sync-metadata record, persisted separately
// from the documents as sync/<kind>.json.
type syncMeta struct {
	path   string
	cached *time.Time
}

type syncMetaDoc struct {
	LastSync int64 `json:"last_sync"`
}

func (m *syncMeta) lastSync() time.Time {
	if m.cached != nil {
		return *m.cached
	}

	var t time.Time
	raw, err := os.ReadFile(m.path)
	if err == nil {
		var doc syncMetaDoc
		if json.Unmarshal(raw, &doc) == nil && doc.LastSync > 0 {
			t = time.Unix(doc.LastSync, 0)
		}
	}
	m.cached = &t
	return t
}

func (m *syncMeta) setLastSync(t time.Time) error {
	if err := writeDocument(m.path, syncMetaDoc{LastSync: t.Unix()}); err != nil {
		return err
	}
	m.cached = &t
	return nil
}
