package storage

// FilesTableSQL returns the CREATE TABLE statement for _ff_files.
// This table stores metadata for all uploaded files across all buckets.
func FilesTableSQL() string {
	return `
CREATE TABLE IF NOT EXISTS _ff_files (
    id TEXT PRIMARY KEY,
    bucket TEXT NOT NULL,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    size INTEGER NOT NULL,
    checksum TEXT,
    compressed BOOLEAN DEFAULT FALSE,
    compression_type TEXT,
    original_size INTEGER,
    metadata TEXT,
    version INTEGER DEFAULT 1,
    created_at TEXT,
    updated_at TEXT,
    UNIQUE(bucket, path)
)`
}

// FilesTableIndexes returns CREATE INDEX statements for _ff_files.
func FilesTableIndexes() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_files_bucket ON _ff_files(bucket)`,
	}
}

// AllStorageTables returns all storage table CREATE statements.
func AllStorageTables() []string {
	return []string{
		FilesTableSQL(),
	}
}

// AllStorageIndexes returns all storage index CREATE statements.
func AllStorageIndexes() []string {
	return FilesTableIndexes()
}
