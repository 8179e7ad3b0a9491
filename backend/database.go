package backend

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dawncrm/backend/sqlite"
	"dawncrm/internal/utils"

	_ "modernc.org/sqlite" // SQLite driver
)

// DocumentKey is the key the store document is saved under.
const DocumentKey = "dawn-customs-crm"

// Database wraps sql.DB with helper methods for schema management and
// implements Persister for a single document key.
type Database struct {
	*sql.DB
	path string
	key  string
}

// InitDatabase opens (creating if needed) the SQLite file and sets up all
// tables. An empty customPath selects the XDG data location.
func InitDatabase(customPath string) (*Database, error) {
	dbPath, err := getDatabasePath(customPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	database := &Database{
		DB:   db,
		path: dbPath,
		key:  DocumentKey,
	}

	if err := database.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// getDatabasePath returns the path to the SQLite database file
// Priority: customPath > $XDG_DATA_HOME/dawncrm/crm.db > ~/.local/share/dawncrm/crm.db
func getDatabasePath(customPath string) (string, error) {
	if customPath != "" {
		return utils.ExpandPath(customPath)
	}

	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "dawncrm", "crm.db"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".local", "share", "dawncrm", "crm.db"), nil
}

func (db *Database) initializeSchema() error {
	for _, pragma := range sqlite.PragmaStatements() {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}

	for _, schema := range sqlite.AllTableSchemas() {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, index := range sqlite.AllIndexes() {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := db.recordSchemaVersion(); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}

func (db *Database) recordSchemaVersion() error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", sqlite.SchemaVersion).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if count > 0 {
		return nil
	}

	_, err = db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		sqlite.SchemaVersion,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	return nil
}

// GetSchemaVersion returns the current schema version from the database
func (db *Database) GetSchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Path returns the filesystem path to the database file
func (db *Database) Path() string {
	return db.path
}

// Load returns the stored document, or nil when nothing was saved yet.
func (db *Database) Load() ([]byte, error) {
	var body string
	err := db.QueryRow(sqlite.LoadDocumentSQL, db.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %q: %w", db.key, err)
	}
	return []byte(body), nil
}

// Save replaces the stored document.
func (db *Database) Save(doc []byte) error {
	_, err := db.Exec(sqlite.SaveDocumentSQL, db.key, string(doc), DocumentVersion, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save document %q: %w", db.key, err)
	}
	return nil
}

// Vacuum runs VACUUM to reclaim the space left by rewritten documents.
func (db *Database) Vacuum() error {
	_, err := db.Exec("VACUUM")
	return err
}

// GetStats returns basic database statistics
func (db *Database) GetStats() (DatabaseStats, error) {
	stats := DatabaseStats{}

	err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&stats.DocumentCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count documents: %w", err)
	}

	var updatedAt sql.NullInt64
	err = db.QueryRow("SELECT COALESCE(LENGTH(body), 0), updated_at FROM documents WHERE key = ?", db.key).
		Scan(&stats.DocumentBytes, &updatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("failed to read document size: %w", err)
	}
	if updatedAt.Valid {
		stats.LastSaved = time.Unix(updatedAt.Int64, 0)
	}

	if stats.SchemaVersion, err = db.GetSchemaVersion(); err != nil {
		return stats, err
	}

	fileInfo, err := os.Stat(db.path)
	if err != nil {
		return stats, fmt.Errorf("failed to stat database file: %w", err)
	}
	stats.DatabaseSize = fileInfo.Size()

	return stats, nil
}

// DatabaseStats holds statistics about the database
type DatabaseStats struct {
	DocumentCount int
	DocumentBytes int64
	SchemaVersion int
	LastSaved     time.Time
	DatabaseSize  int64 // in bytes
}

// String returns a human-readable representation of database statistics
func (s DatabaseStats) String() string {
	sizeMB := float64(s.DatabaseSize) / (1024 * 1024)
	saved := "never"
	if !s.LastSaved.IsZero() {
		saved = s.LastSaved.Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"Documents: %d | Document: %d bytes | Schema: v%d | Saved: %s | Size: %.2f MB",
		s.DocumentCount, s.DocumentBytes, s.SchemaVersion, saved, sizeMB,
	)
}

// MemoryPersister keeps the document in memory. Used for ephemeral stores
// and tests.
type MemoryPersister struct {
	mu    sync.Mutex
	doc   []byte
	saves int
	// Err, when set, is returned by Save.
	Err error
}

// Load returns the last saved document.
func (m *MemoryPersister) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, nil
	}
	return append([]byte(nil), m.doc...), nil
}

// Save stores a copy of doc.
func (m *MemoryPersister) Save(doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.doc = append([]byte(nil), doc...)
	m.saves++
	return nil
}

// Saves reports how many successful saves happened.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
