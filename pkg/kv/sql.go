package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MwailaCoding/storefront/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a row of the kv_entries table.
type Entry struct {
	Key       string    `gorm:"column:slot_key;primaryKey;size:191"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Entry) TableName() string { return "kv_entries" }

// SQLStore persists slots in the kv_entries table created by pkg/migrate.
type SQLStore struct {
	client *db.Client
	now    func() time.Time
}

func NewSQLStore(client *db.Client) (*SQLStore, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	return &SQLStore{client: client, now: time.Now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.client.DB().WithContext(ctx).Where("slot_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select kv entry %s: %w", key, err)
	}
	return []byte(entry.Value), nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	entry := Entry{Key: key, Value: string(value), UpdatedAt: s.now().UTC()}
	err := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert kv entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.client.DB().WithContext(ctx).Where("slot_key = ?", key).Delete(&Entry{}).Error
	if err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
