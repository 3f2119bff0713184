package repo

import (
	"context"
	"errors"
	"sort"

	"callbell/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrPersist: изменение применено в памяти, но снимок на диск не записан.
var ErrPersist = errors.New("persist")

// Store: контракт хранилища активных вызовов и истории.
// Реализации: MemoryStore (опционально с JSON-файлом) и SQLStore (gorm).
// Ошибка с ErrPersist значит, что изменение уже применено и результат валиден.
type Store interface {
	// UpsertRequest создаёт или целиком перезаписывает вызов по DeviceID.
	UpsertRequest(ctx context.Context, r models.Request) error
	GetRequest(ctx context.Context, deviceID string) (models.Request, error)
	SetStatus(ctx context.Context, deviceID string, st models.Status) (models.Request, error)
	// ListRequests: активные вызовы, старые первыми.
	ListRequests(ctx context.Context) ([]models.Request, error)

	// CloseRequest атомарно удаляет вызов и добавляет запись истории,
	// построенную build из удаляемого вызова. EntryID/Seq заполняет хранилище.
	CloseRequest(ctx context.Context, deviceID string, build func(models.Request) models.HistoryEntry) (models.HistoryEntry, error)
	// ListHistory: история, новые первыми.
	ListHistory(ctx context.Context) ([]models.HistoryEntry, error)
	UpdateReason(ctx context.Context, entryID, reason string) error
	DeleteHistory(ctx context.Context, entryID string) error
}

func sortRequests(rs []models.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].RequestedAt.Equal(rs[j].RequestedAt) {
			return rs[i].RequestedAt.Before(rs[j].RequestedAt)
		}
		return rs[i].DeviceID < rs[j].DeviceID
	})
}
