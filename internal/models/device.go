package models

import "time"

// Status: состояние активного вызова.
type Status string

const (
	StatusNew    Status = "NEW"
	StatusMoving Status = "MOVING"
)

// Request: активный (не закрытый) вызов помощи с устройства.
// Ключ device_id, повторный вызов с того же устройства перезаписывает запись.
type Request struct {
	DeviceID    string    `gorm:"column:device_id;primaryKey;size:191" json:"device_id"`
	Status      Status    `gorm:"size:16;not null" json:"status"`
	RequestedAt time.Time `gorm:"column:requested_at;index" json:"time"`
}

func (Request) TableName() string { return "requests" }

// HistoryEntry: закрытый вызов. Seq задаёт порядок (новые сверху),
// EntryID: стабильный идентификатор для правки/удаления.
type HistoryEntry struct {
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement" json:"-"`
	EntryID   string    `gorm:"column:entry_id;uniqueIndex;size:36" json:"id"`
	DeviceID  string    `gorm:"column:device_id;index;size:191" json:"device_id"`
	StartedAt time.Time `gorm:"column:started_at" json:"start_time"`
	EndedAt   time.Time `gorm:"column:ended_at" json:"end_time"`
	Duration  string    `gorm:"size:64" json:"duration"`
	Reason    string    `gorm:"type:text" json:"reason"`
}

func (HistoryEntry) TableName() string { return "history_entries" }

// Command: команда устройству, забираемая опросом /command/{id}.
type Command string

const (
	CommandNone Command = "NONE"
	CommandMove Command = "MOVE"
	CommandStop Command = "STOP"
)
