package notify

import (
	"sync"

	"callbell/internal/logs"
	"callbell/internal/metrics"
)

const (
	// EventUpdate: «что-то поменялось, перерисуйте».
	EventUpdate = "UPDATE"
	// EventNewDevicePrefix + device id: новый вызов.
	EventNewDevicePrefix = "NEW_DEVICE:"
)

func NewDeviceEvent(deviceID string) string { return EventNewDevicePrefix + deviceID }

// Subscription: ящик одного подписчика. C закрывается при Unsubscribe или Hub.Close.
type Subscription struct {
	C   <-chan string
	ch  chan string
	hub *Hub
}

func (s *Subscription) Unsubscribe() { s.hub.remove(s) }

// Hub раздаёт сообщения всем подписчикам через ограниченные буферы.
// Publish не блокируется: если ящик полон, сообщение для него теряется.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	size   int
	closed bool
}

func NewHub(mailboxSize int) *Hub {
	if mailboxSize <= 0 {
		mailboxSize = 1
	}
	return &Hub{subs: map[*Subscription]struct{}{}, size: mailboxSize}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan string, h.size)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	metrics.Subscribers.Inc()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	metrics.Subscribers.Dec()
}

// Publish возвращает число подписчиков, получивших сообщение.
func (h *Hub) Publish(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs {
		select {
		case s.ch <- msg:
			n++
		default:
			metrics.DroppedMessages.Inc()
		}
	}
	logs.Logger.Debugf("push %q to %d subscriber(s)", msg, n)
	return n
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close закрывает все ящики; новые подписки сразу получают закрытый канал.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
		metrics.Subscribers.Dec()
	}
}
