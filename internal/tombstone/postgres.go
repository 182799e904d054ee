package tombstone

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	eherrors "github.com/arkilian/eventhash/internal/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type filteredGroupHashModel struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	ProjectID        int64     `gorm:"column:project_id"`
	Hash             string    `gorm:"column:hash"`
	GroupTombstoneID int64     `gorm:"column:group_tombstone_id"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (filteredGroupHashModel) TableName() string { return "filtered_group_hashes" }

// PostgresStore implements Store on Postgres through GORM.
type PostgresStore struct {
	db *gorm.DB
}

// ConnectPostgres opens and validates a Postgres connection pool.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("tombstone: connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("tombstone: gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("tombstone: ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded SQL migrations in lexical order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.Printf("tombstone: applied migration %s", name)
	}
	return nil
}

// NewPostgresStore wraps an open GORM connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert writes one tombstoned digest in its own transaction and branches
// on the affected row count instead of a constraint error.
func (s *PostgresStore) Insert(ctx context.Context, h Hash) (InsertResult, error) {
	rec := filteredGroupHashModel{
		ProjectID:        h.ProjectID,
		Hash:             h.Digest,
		GroupTombstoneID: h.TombstoneID,
		CreatedAt:        h.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "hash"}},
			DoNothing: true,
		}).Create(&rec)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return InsertExisting, nil
		}
		return 0, eherrors.NewStorageError(eherrors.CodeInsertFailed, "failed to insert tombstone hash", err)
	}
	if !created {
		return InsertExisting, nil
	}
	return InsertCreated, nil
}

// FindFirst returns the tombstone of the oldest matching row.
func (s *PostgresStore) FindFirst(ctx context.Context, projectID int64, digests []string) (int64, bool, error) {
	if len(digests) == 0 {
		return 0, false, nil
	}
	var rows []filteredGroupHashModel
	err := s.db.WithContext(ctx).
		Select("group_tombstone_id").
		Where("project_id = ? AND hash IN ?", projectID, digests).
		Order("id").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, false, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to look up tombstone hashes", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].GroupTombstoneID, true, nil
}

// List returns every tombstoned digest of a project.
func (s *PostgresStore) List(ctx context.Context, projectID int64) ([]Hash, error) {
	var rows []filteredGroupHashModel
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id").Find(&rows).Error
	if err != nil {
		return nil, eherrors.NewStorageError(eherrors.CodeQueryFailed, "failed to list tombstone hashes", err)
	}
	out := make([]Hash, 0, len(rows))
	for _, r := range rows {
		out = append(out, Hash{
			ID:          r.ID,
			ProjectID:   r.ProjectID,
			Digest:      r.Hash,
			TombstoneID: r.GroupTombstoneID,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
