package fs

import "time"

// collProps is the JSON sidecar written to .Radicale.props. Property keys
// are serialized as "{namespace}local" so they round-trip through a plain
// JSON object without collapsing distinct namespaces that share a local
// name.
type collProps struct {
	Tag        int               `json:"tag"`
	Properties map[string]string `json:"properties"`
	ETag       string            `json:"etag"`
	SyncSeq    int64             `json:"sync_seq"`
	SyncToken  string            `json:"sync_token"`
}

// itemCacheEntry is the per-item cache record of spec.md §4.2: etag, uid,
// component_kind, text_index, time_index, plus the lookup key fields used
// to detect staleness (cache_mode = "hash" or "mtime").
type itemCacheEntry struct {
	ETag      string     `json:"etag"`
	UID       string     `json:"uid"`
	Kind      string     `json:"kind"`
	TextIndex string     `json:"text_index"`
	TimeStart *time.Time `json:"time_start,omitempty"`
	TimeEnd   *time.Time `json:"time_end,omitempty"`
	ModTimeNS int64      `json:"mod_time_ns"`
	Size      int64      `json:"size"`
	Hash      string     `json:"hash,omitempty"`
}

// syncSnapshotEntry is one (name, etag) pair as recorded in a
// .Radicale.cache/sync-token/<token> snapshot file.
type syncSnapshotEntry struct {
	Name string `json:"name"`
	ETag string `json:"etag"`
}

// historyRecord is one entry of .Radicale.cache/history/<name>/<token>.
type historyRecord struct {
	Token   string `json:"token"`
	ETag    string `json:"etag"`
	Removed bool   `json:"removed"`
}
