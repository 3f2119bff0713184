package repo

import (
	"context"
	"errors"

	"callbell/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// UpsertRequest: повторный вызов перезаписывает статус и время (last write wins).
func (s *SQLStore) UpsertRequest(ctx context.Context, r models.Request) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "requested_at"}),
		}).
		Create(&r).Error
}

func (s *SQLStore) GetRequest(ctx context.Context, deviceID string) (models.Request, error) {
	var m models.Request
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&m).Error; err != nil {
		return models.Request{}, notFound(err)
	}
	return m, nil
}

func (s *SQLStore) SetStatus(ctx context.Context, deviceID string, st models.Status) (models.Request, error) {
	var m models.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).First(&m).Error; err != nil {
			return notFound(err)
		}
		// MySQL отдаёт RowsAffected=0 при неизменном значении, поэтому сначала First
		if err := tx.Model(&models.Request{}).
			Where("device_id = ?", deviceID).
			Update("status", st).Error; err != nil {
			return err
		}
		m.Status = st
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}
	return m, nil
}

func (s *SQLStore) ListRequests(ctx context.Context) ([]models.Request, error) {
	var out []models.Request
	err := s.db.WithContext(ctx).Order("requested_at ASC, device_id ASC").Find(&out).Error
	return out, err
}

func (s *SQLStore) CloseRequest(ctx context.Context, deviceID string, build func(models.Request) models.HistoryEntry) (models.HistoryEntry, error) {
	var e models.HistoryEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Request
		if err := tx.Where("device_id = ?", deviceID).First(&m).Error; err != nil {
			return notFound(err)
		}
		e = build(m)
		e.Seq = 0
		e.EntryID = uuid.NewString()
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		return tx.Where("device_id = ?", deviceID).Delete(&models.Request{}).Error
	})
	if err != nil {
		return models.HistoryEntry{}, err
	}
	return e, nil
}

func (s *SQLStore) ListHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	err := s.db.WithContext(ctx).Order("seq DESC").Find(&out).Error
	return out, err
}

func (s *SQLStore) UpdateReason(ctx context.Context, entryID, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e models.HistoryEntry
		if err := tx.Where("entry_id = ?", entryID).First(&e).Error; err != nil {
			return notFound(err)
		}
		return tx.Model(&models.HistoryEntry{}).
			Where("entry_id = ?", entryID).
			Update("reason", reason).Error
	})
}

func (s *SQLStore) DeleteHistory(ctx context.Context, entryID string) error {
	tx := s.db.WithContext(ctx).Where("entry_id = ?", entryID).Delete(&models.HistoryEntry{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
