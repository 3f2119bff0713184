package notify

import (
	"fmt"
	"net/http"
	"time"

	"callbell/internal/logs"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// HTTP отдаёт поток событий браузерам: SSE на /events и websocket на /ws.
type HTTP struct {
	hub       *Hub
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

func NewHTTP(hub *Hub, keepAlive time.Duration) *HTTP {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &HTTP{
		hub:       hub,
		keepAlive: keepAlive,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/events", h.events).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.ws).Methods(http.MethodGet)
}

func (h *HTTP) events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// у сервера есть WriteTimeout, поток должен жить дольше
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	defer sub.Unsubscribe()

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		logs.Logger.Warnf("sse: flush unsupported: %v", err)
		return
	}

	t := time.NewTicker(h.keepAlive)
	defer t.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-t.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *HTTP) ws(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Logger.Warnf("ws upgrade: %v", err)
		return
	}
	sub := h.hub.Subscribe()
	logs.Logger.Debugf("ws connected (%d total)", h.hub.Count())

	pongWait := 3 * h.keepAlive

	// read loop w/ pong; выход: клиент ушёл
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SetReadLimit(1024)
		_ = c.SetReadDeadline(time.Now().Add(pongWait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	t := time.NewTicker(h.keepAlive)
	defer func() {
		t.Stop()
		sub.Unsubscribe()
		_ = c.Close()
		logs.Logger.Debugf("ws disconnected (%d total)", h.hub.Count())
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(time.Second))
				return
			}
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-t.C:
			if err := c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
