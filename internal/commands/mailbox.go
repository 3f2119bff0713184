package commands

import (
	"sync"

	"callbell/internal/models"
)

// Mailbox: по одной ячейке на устройство. Take отдаёт команду и сбрасывает ячейку в NONE.
// Доставка at-most-once: если команда перезаписана до опроса, предыдущая теряется.
type Mailbox struct {
	mu    sync.Mutex
	slots map[string]models.Command
}

func NewMailbox() *Mailbox {
	return &Mailbox{slots: map[string]models.Command{}}
}

func (m *Mailbox) Issue(deviceID string, cmd models.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cmd == models.CommandNone {
		delete(m.slots, deviceID)
		return
	}
	m.slots[deviceID] = cmd
}

func (m *Mailbox) Take(deviceID string) models.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.slots[deviceID]
	if !ok {
		return models.CommandNone
	}
	delete(m.slots, deviceID)
	return cmd
}

// Peek: без сброса, для карточки на дашборде.
func (m *Mailbox) Peek(deviceID string) models.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cmd, ok := m.slots[deviceID]; ok {
		return cmd
	}
	return models.CommandNone
}
