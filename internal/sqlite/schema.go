package sqlite

// Schema DDL for the entries table. SQLite is the query engine; entries.jsonl
// is the source of truth and is loaded into this table on Attach.
const (
	createEntries = `CREATE TABLE entries (
    key TEXT NOT NULL PRIMARY KEY,
    entry_id TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	idxEntriesUpdated = `CREATE INDEX idx_entries_updated ON entries(updated_at);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createEntries,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxEntriesUpdated,
}

// entriesFile is the JSONL file backing the entries table.
const entriesFile = "entries.jsonl"

// databaseFile is the SQLite file created in DataDir on Attach.
const databaseFile = "keepstate.db"
