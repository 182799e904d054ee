package tombstone

// CreateFilteredGroupHashesTableSQL creates the tombstone hash table. The
// unique constraint on (project_id, hash) is the only coordination point
// between concurrent writers.
const CreateFilteredGroupHashesTableSQL = `
CREATE TABLE IF NOT EXISTS filtered_group_hashes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    hash TEXT NOT NULL,
    group_tombstone_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (project_id, hash)
)`

// CreateFilteredGroupHashesIndexesSQL creates secondary indexes.
var CreateFilteredGroupHashesIndexesSQL = []string{
	// Index for listing and cleaning up the hashes of one tombstone
	`CREATE INDEX IF NOT EXISTS idx_filtered_group_hashes_tombstone
		ON filtered_group_hashes(group_tombstone_id)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateFilteredGroupHashesTableSQL}
	return append(stmts, CreateFilteredGroupHashesIndexesSQL...)
}
