package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by a Store when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// ErrConflict is returned when an update keeps losing to concurrent writers.
var ErrConflict = errors.New("snapshot modified concurrently")

// UpdateFunc receives the stored snapshot of a key, or Empty(key) when there
// is none, and returns the snapshot to store. It may be called more than once
// for a single Update and must not retain its argument between calls.
type UpdateFunc func(current *Snapshot) *Snapshot

// Store persists merged snapshots by period key.
type Store interface {
	Save(ctx context.Context, key string, s *Snapshot) error
	Load(ctx context.Context, key string) (*Snapshot, error)
	// Update applies fn to the snapshot of key and saves the result as one
	// atomic step. Concurrent updates of a key never overwrite each other.
	Update(ctx context.Context, key string, fn UpdateFunc) (*Snapshot, error)
	// Range returns the snapshots with from <= key <= to in key order.
	// An empty bound is open.
	Range(ctx context.Context, from, to string) ([]*Snapshot, error)
}

// SnapshotRecord is the SQL row holding one stored snapshot.
type SnapshotRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	PeriodKey string `gorm:"uniqueIndex;size:32;not null"`
	Version   int    `gorm:"not null"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SnapshotRecord) TableName() string {
	return "stats_snapshots"
}

// SQLStore is a Store backed by GORM. Updates run in a transaction and are
// serialized within the process.
type SQLStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (st *SQLStore) Save(ctx context.Context, key string, s *Snapshot) error {
	return saveRecord(st.db.WithContext(ctx), key, s)
}

func (st *SQLStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	return loadRecord(st.db.WithContext(ctx), key)
}

func (st *SQLStore) Update(ctx context.Context, key string, fn UpdateFunc) (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var updated *Snapshot
	err := st.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadRecord(tx, key)
		if errors.Is(err, ErrNotFound) {
			current = Empty(key)
		} else if err != nil {
			return err
		}

		updated = fn(current)
		return saveRecord(tx, key, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (st *SQLStore) Range(ctx context.Context, from, to string) ([]*Snapshot, error) {
	query := st.db.WithContext(ctx).Model(&SnapshotRecord{})
	if from != "" {
		query = query.Where("period_key >= ?", from)
	}
	if to != "" {
		query = query.Where("period_key <= ?", to)
	}

	var records []SnapshotRecord
	if err := query.Order("period_key ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	result := make([]*Snapshot, 0, len(records))
	for _, record := range records {
		s, err := DecodeCurrent([]byte(record.Payload))
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", record.PeriodKey, err)
		}
		result = append(result, s)
	}
	return result, nil
}

func saveRecord(db *gorm.DB, key string, s *Snapshot) error {
	payload, err := Encode(s)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	now := time.Now().UTC()
	record := SnapshotRecord{
		PeriodKey: key,
		Version:   int(CurrentVersion),
		Payload:   string(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "period_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "payload", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

func loadRecord(db *gorm.DB, key string) (*Snapshot, error) {
	var record SnapshotRecord
	err := db.Where("period_key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	return DecodeCurrent([]byte(record.Payload))
}

// Ingest merges partials into the stored snapshot for key, recomputes its
// ratios and saves it. A missing snapshot starts from Empty(key).
func Ingest(ctx context.Context, store Store, key string, partials ...*Snapshot) (*Snapshot, error) {
	return store.Update(ctx, key, func(acc *Snapshot) *Snapshot {
		for _, partial := range partials {
			acc = Merge(key, acc, partial)
		}
		return ComputeRatios(key, acc)
	})
}
