package tombstone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	eherrors "github.com/arkilian/eventhash/internal/errors"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string

	insertStmt *sql.Stmt
}

// NewSQLiteStore opens (and creates if needed) the tombstone database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tombstone: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, dbPath: dbPath}

	// Schema must exist before the read-only pool attaches
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tombstone: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tombstone: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	store.readDB = readDB

	insertStmt, err := db.Prepare(`
		INSERT INTO filtered_group_hashes (project_id, hash, group_tombstone_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (project_id, hash) DO NOTHING`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("tombstone: failed to prepare insert statement: %w", err)
	}
	store.insertStmt = insertStmt

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Insert writes one tombstoned digest inside its own transaction.
func (s *SQLiteStore) Insert(ctx context.Context, h Hash) (InsertResult, error) {
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eherrors.NewStorageError(eherrors.CodeUnavailable, "failed to begin transaction", err)
	}

	res, err := tx.StmtContext(ctx, s.insertStmt).ExecContext(ctx,
		h.ProjectID, h.Digest, h.TombstoneID, createdAt.Unix())
	if err != nil {
		tx.Rollback()
		if isSQLiteUniqueViolation(err) {
			return InsertExisting, nil
		}
		return 0, eherrors.NewStorageError(eherrors.CodeInsertFailed, "failed to insert tombstone hash", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, eherrors.NewStorageError(eherrors.CodeInsertFailed, "failed to read affected rows", err)
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteUniqueViolation(err) {
			return InsertExisting, nil
		}
		return 0, eherrors.NewStorageError(eherrors.CodeInsertFailed, "failed to commit tombstone hash", err)
	}

	if affected == 0 {
		return InsertExisting, nil
	}
	return InsertCreated, nil
}

// FindFirst returns the tombstone of the oldest matching row.
func (s *SQLiteStore) FindFirst(ctx context.Context, projectID int64, digests []string) (int64, bool, error) {
	if len(digests) == 0 {
		return 0, false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(digests)), ",")
	query := `SELECT group_tombstone_id FROM filtered_group_hashes
		WHERE project_id = ? AND hash IN (` + placeholders + `)
		ORDER BY id LIMIT 1`

	args := make([]interface{}, 0, len(digests)+1)
	args = append(args, projectID)
	for _, d := range digests {
		args = append(args, d)
	}

	var tombstoneID int64
	err := s.readDB.QueryRowContext(ctx, query, args...).Scan(&tombstoneID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to look up tombstone hashes", err)
	}
	return tombstoneID, true, nil
}

// List returns every tombstoned digest of a project.
func (s *SQLiteStore) List(ctx context.Context, projectID int64) ([]Hash, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, project_id, hash, group_tombstone_id, created_at
		FROM filtered_group_hashes WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to list tombstone hashes", err)
	}
	defer rows.Close()

	var out []Hash
	for rows.Next() {
		var h Hash
		var createdAt int64
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.Digest, &h.TombstoneID, &createdAt); err != nil {
			return nil, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to scan tombstone hash", err)
		}
		h.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to list tombstone hashes", err)
	}
	return out, nil
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	if s.insertStmt != nil {
		s.insertStmt.Close()
	}
	if s.readDB != nil {
		s.readDB.Close()
	}
	return s.db.Close()
}

// isSQLiteUniqueViolation matches UNIQUE and PRIMARY KEY constraint failures.
func isSQLiteUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
