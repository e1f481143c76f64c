package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type blobRecord struct {
	Key       string `gorm:"primaryKey;size:512"`
	Data      []byte
	UpdatedAt time.Time
}

func (blobRecord) TableName() string {
	return "blob_records"
}

// SQLiteStore is a Store backed by a local SQLite file. It exists for
// development and test deployments that have no hosted blob service.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite establishes a SQLite connection, performs schema migration, and
// returns a Store over it.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("blob: sqlite path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&blobRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("blob store initialized", zap.String("path", path))
	}

	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an already-open gorm handle; the caller owns migration.
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Read returns the payload at key, or nil when absent.
func (s *SQLiteStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var record blobRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.Data, nil
}

// Write upserts the payload under key.
func (s *SQLiteStore) Write(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	record := blobRecord{Key: key, Data: data, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&record).Error
}

// Delete removes the row for key; deleting an absent key succeeds.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&blobRecord{}).Error
}

// List returns up to limit keys under prefix in ascending key order. The
// cursor is the last key of the previous page.
func (s *SQLiteStore) List(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	if limit <= 0 || limit > maxListPageSize {
		limit = maxListPageSize
	}

	query := s.db.WithContext(ctx).Model(&blobRecord{}).
		Where("key LIKE ?", prefix+"%").
		Order("key ASC").
		Limit(limit)
	if cursor != "" {
		query = query.Where("key > ?", cursor)
	}

	var keys []string
	if err := query.Pluck("key", &keys).Error; err != nil {
		return Page{}, err
	}

	page := Page{Keys: keys}
	if len(keys) == limit {
		page.Cursor = keys[len(keys)-1]
	}
	return page, nil
}
