package sqlite

// Schema version for migration management
const SchemaVersion = 1

// DocumentsTableSQL creates the key/value table holding persisted documents.
// The body is the JSON-encoded store state.
const DocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    key TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL
);
`

// SchemaVersionTableSQL creates the schema version table for migration tracking
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// DocumentsIndexesSQL creates indexes on the documents table
const DocumentsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
`

// LoadDocumentSQL reads one document body by key.
const LoadDocumentSQL = `SELECT body FROM documents WHERE key = ?`

// SaveDocumentSQL writes one document body, replacing any previous value.
const SaveDocumentSQL = `
INSERT INTO documents (key, body, version, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    body = excluded.body,
    version = excluded.version,
    updated_at = excluded.updated_at
`

// AllTableSchemas returns all table creation statements in order
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		DocumentsTableSQL,
	}
}

// AllIndexes returns all index creation statements
func AllIndexes() []string {
	return []string{
		DocumentsIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on database connection
func PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
}
