package store

import (
	"context"
	"errors"

	"academtrack_go/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteStore keeps every logical resource as one row of the
// documents table, payload as a JSON column.
type RemoteStore struct {
	db *gorm.DB
}

func NewRemoteStore(db *gorm.DB) *RemoteStore {
	return &RemoteStore{db: db}
}

func (s *RemoteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("resource_key = ?", key).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(doc.Payload), nil
}

func (s *RemoteStore) Save(ctx context.Context, key string, payload []byte) error {
	doc := models.Document{
		ResourceKey: key,
		Payload:     models.JSON(payload),
	}
	// Whole-document overwrite: last writer wins at the resource level.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&doc).Error
}
