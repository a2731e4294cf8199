package sqlite

// entryJSON is one line of entries.jsonl.
type entryJSON struct {
	EntryID   string `json:"entry_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}
