package board

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"callbell/internal/commands"
	"callbell/internal/logs"
	"callbell/internal/metrics"
	"callbell/internal/models"
	"callbell/internal/notify"
	"callbell/internal/repo"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound      = repo.ErrNotFound
	ErrInvalidDevice = errors.New("device_id is required")
)

// Notifier: рассылка событий браузерам (notify.Hub).
type Notifier interface {
	Publish(msg string) int
}

// CommandPublisher: дополнительный канал команд устройству (MQTT).
type CommandPublisher interface {
	PublishCommand(deviceID string, cmd models.Command) error
}

type Options struct {
	Reasons     []string
	OtherReason string
	Location    *time.Location
	Now         func() time.Time
}

// Service: реестр активных вызовов, история и уведомления.
type Service struct {
	store   repo.Store
	hub     Notifier
	mailbox *commands.Mailbox
	pub     CommandPublisher

	reasons []string
	other   string
	loc     *time.Location
	now     func() time.Time
}

func NewService(store repo.Store, hub Notifier, mailbox *commands.Mailbox, o Options) *Service {
	s := &Service{
		store:   store,
		hub:     hub,
		mailbox: mailbox,
		reasons: append([]string(nil), o.Reasons...),
		other:   o.OtherReason,
		loc:     o.Location,
		now:     o.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.mailbox == nil {
		s.mailbox = commands.NewMailbox()
	}
	return s
}

// SetPublisher включает дублирование команд во внешний канал.
func (s *Service) SetPublisher(p CommandPublisher) { s.pub = p }

func (s *Service) Reasons() []string   { return append([]string(nil), s.reasons...) }
func (s *Service) OtherReason() string { return s.other }

// ResolveReason: выбран «другое» и введён текст, тогда берём текст.
func (s *Service) ResolveReason(reason, other string) string {
	if reason == s.other {
		if o := strings.TrimSpace(other); o != "" {
			return o
		}
	}
	return reason
}

// IsListedReason: причина из списка (для предзаполнения формы правки).
func (s *Service) IsListedReason(reason string) bool {
	for _, r := range s.reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func (s *Service) FormatTime(t time.Time) string { return t.In(s.loc).Format(TimeLayout) }

// applied: мутация есть в хранилище, даже если снимок на диск не записан.
func applied(err error) bool { return err == nil || errors.Is(err, repo.ErrPersist) }

func (s *Service) publish(msg string) {
	if s.hub != nil {
		s.hub.Publish(msg)
	}
}

func (s *Service) issue(deviceID string, cmd models.Command) {
	s.mailbox.Issue(deviceID, cmd)
	metrics.CommandsIssued.WithLabelValues(string(cmd)).Inc()
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishCommand(deviceID, cmd); err != nil {
		logs.Logger.WithField("device_id", deviceID).Warnf("publish command %s: %v", cmd, err)
	}
}

func (s *Service) refreshActive(ctx context.Context) {
	rs, err := s.store.ListRequests(ctx)
	if err != nil {
		return
	}
	metrics.ActiveRequests.Set(float64(len(rs)))
}

// Register создаёт или перезаписывает вызов устройства со статусом NEW.
func (s *Service) Register(ctx context.Context, deviceID string) (models.Request, error) {
	if strings.TrimSpace(deviceID) == "" {
		return models.Request{}, ErrInvalidDevice
	}
	r := models.Request{DeviceID: deviceID, Status: models.StatusNew, RequestedAt: s.now()}
	err := s.store.UpsertRequest(ctx, r)
	if !applied(err) {
		return models.Request{}, fmt.Errorf("register %s: %w", deviceID, err)
	}
	metrics.RequestEvents.WithLabelValues("emergency").Inc()
	s.refreshActive(ctx)
	s.publish(notify.NewDeviceEvent(deviceID))

	logs.Logger.WithField("device_id", deviceID).Info("emergency registered")
	if err != nil {
		return r, fmt.Errorf("register %s: %w", deviceID, err)
	}
	return r, nil
}

// MarkMoving: сотрудник идёт к устройству; устройство получает MOVE.
func (s *Service) MarkMoving(ctx context.Context, deviceID string) (models.Request, error) {
	r, err := s.store.SetStatus(ctx, deviceID, models.StatusMoving)
	if !applied(err) {
		return models.Request{}, fmt.Errorf("move %s: %w", deviceID, err)
	}
	metrics.RequestEvents.WithLabelValues("move").Inc()
	s.issue(deviceID, models.CommandMove)
	s.publish(notify.EventUpdate)

	logs.Logger.WithField("device_id", deviceID).Info("staff moving")
	if err != nil {
		return r, fmt.Errorf("move %s: %w", deviceID, err)
	}
	return r, nil
}

// Clear закрывает вызов: запись истории в начало, вызов удаляется, устройство получает STOP.
func (s *Service) Clear(ctx context.Context, deviceID, reason, other string) (models.HistoryEntry, error) {
	reason = s.ResolveReason(reason, other)
	end := s.now()
	e, err := s.store.CloseRequest(ctx, deviceID, func(r models.Request) models.HistoryEntry {
		return models.HistoryEntry{
			DeviceID:  r.DeviceID,
			StartedAt: r.RequestedAt,
			EndedAt:   end,
			Duration:  FormatElapsed(end.Sub(r.RequestedAt)),
			Reason:    reason,
		}
	})
	if !applied(err) {
		return models.HistoryEntry{}, fmt.Errorf("clear %s: %w", deviceID, err)
	}
	metrics.RequestEvents.WithLabelValues("clear").Inc()
	metrics.TimeToClear.Observe(end.Sub(e.StartedAt).Seconds())
	s.refreshActive(ctx)
	s.issue(deviceID, models.CommandStop)
	s.publish(notify.EventUpdate)

	logs.Logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"entry_id":  e.EntryID,
		"duration":  e.Duration,
	}).Info("request cleared")
	if err != nil {
		return e, fmt.Errorf("clear %s: %w", deviceID, err)
	}
	return e, nil
}

func (s *Service) EditReason(ctx context.Context, entryID, reason, other string) error {
	reason = s.ResolveReason(reason, other)
	err := s.store.UpdateReason(ctx, entryID, reason)
	if applied(err) {
		s.publish(notify.EventUpdate)
	}
	if err != nil {
		return fmt.Errorf("edit reason %s: %w", entryID, err)
	}
	return nil
}

func (s *Service) DeleteHistory(ctx context.Context, entryID string) error {
	err := s.store.DeleteHistory(ctx, entryID)
	if applied(err) {
		s.publish(notify.EventUpdate)
	}
	if err != nil {
		return fmt.Errorf("delete history %s: %w", entryID, err)
	}
	return nil
}

// TakeCommand: опрос устройства; команда отдаётся один раз.
func (s *Service) TakeCommand(deviceID string) models.Command {
	return s.mailbox.Take(deviceID)
}

// Request: активный вызов устройства или ErrNotFound.
func (s *Service) Request(ctx context.Context, deviceID string) (models.Request, error) {
	r, err := s.store.GetRequest(ctx, deviceID)
	if err != nil {
		return models.Request{}, fmt.Errorf("request %s: %w", deviceID, err)
	}
	return r, nil
}

// ActiveRequest: вызов с полями для отображения.
type ActiveRequest struct {
	models.Request
	TimeStr string `json:"time_str"`
	Elapsed string `json:"elapsed"`
	// Pending: команда, которую устройство ещё не забрало.
	Pending models.Command `json:"pending_command"`
	// PathID: DeviceID для подстановки в URL.
	PathID string `json:"-"`
}

func (s *Service) Active(ctx context.Context) ([]ActiveRequest, error) {
	rs, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	now := s.now()
	out := make([]ActiveRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, ActiveRequest{
			Request: r,
			TimeStr: s.FormatTime(r.RequestedAt),
			Elapsed: FormatElapsed(now.Sub(r.RequestedAt)),
			Pending: s.mailbox.Peek(r.DeviceID),
			PathID:  url.PathEscape(r.DeviceID),
		})
	}
	return out, nil
}

func (s *Service) History(ctx context.Context) ([]models.HistoryEntry, error) {
	h, err := s.store.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return h, nil
}
