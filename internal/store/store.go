package store

import (
	"database/sql"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/dosewise-cli/internal/config"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
)

// Fixed keys for the three persisted collections. Values are JSON blobs;
// every write replaces the whole collection so a caller never observes a
// partially written record.
const (
	KeyMedications = "medications"
	KeyDoseEvents  = "dose_events"
	KeyDevicePIN   = "device_pin"
)

// Store provides unified access to BadgerDB (domain collections) and SQLite
// (reminder delivery audit log). Pure storage; no business logic.
type Store struct {
	badger *badger.DB
	db     *gorm.DB
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	badgerOpts := badger.DefaultOptions(cfg.Storage.BadgerPath).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to open badger")
	}

	sqliteDB, err := sql.Open("sqlite", cfg.Storage.SQLitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		badgerDB.Close()
		return nil, apperrors.Persistence(err, "failed to open sqlite")
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		badgerDB.Close()
		return nil, apperrors.Persistence(err, "failed to open sqlite")
	}

	if err := db.AutoMigrate(&ReminderDelivery{}); err != nil {
		badgerDB.Close()
		return nil, apperrors.Persistence(err, "failed to migrate")
	}

	return &Store{badger: badgerDB, db: db}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Get retrieves a value by key. A missing key returns (nil, nil).
func (s *Store) Get(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to read "+key)
	}
	return val, nil
}

// Put stores a value under key
func (s *Store) Put(key string, value []byte) error {
	err := s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return apperrors.Persistence(err, "failed to write "+key)
	}
	return nil
}

// Delete removes a key
func (s *Store) Delete(key string) error {
	err := s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return apperrors.Persistence(err, "failed to delete "+key)
	}
	return nil
}

// RecordDelivery appends a row to the reminder delivery audit log. The log
// is derived data owned by the scheduler; it is never read back to
// reconstruct medication state.
func (s *Store) RecordDelivery(d *ReminderDelivery) error {
	if err := s.db.Create(d).Error; err != nil {
		return apperrors.Persistence(err, "failed to record delivery")
	}
	return nil
}

// ListDeliveries returns recent delivery rows, newest first, optionally
// filtered by medication id.
func (s *Store) ListDeliveries(medicationID string, limit int) ([]ReminderDelivery, error) {
	query := s.db.Order("created_at DESC")
	if medicationID != "" {
		query = query.Where("medication_id = ?", medicationID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []ReminderDelivery
	if err := query.Find(&rows).Error; err != nil {
		return nil, apperrors.Persistence(err, "failed to list deliveries")
	}
	return rows, nil
}
