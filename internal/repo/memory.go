package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"callbell/internal/models"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// snapshot: формат data.json {devices, history}.
type snapshot struct {
	Devices     map[string]snapshotDevice `json:"devices"`
	History     []models.HistoryEntry     `json:"history"`
	Seq         uint64                    `json:"seq"`
	SavedAtUnix int64                     `json:"saved_at_unix"`
}

type snapshotDevice struct {
	Status models.Status `json:"status"`
	Time   time.Time     `json:"time"`
}

// MemoryStore держит всё в памяти. Если path задан, после каждой мутации
// синхронно пишет снимок в файл (tmp + rename) и читает его при старте.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]models.Request
	history  []models.HistoryEntry // [0]: самая свежая
	seq      uint64

	fs   afero.Fs
	path string
}

func NewMemoryStore(fsys afero.Fs, path string) (*MemoryStore, error) {
	s := &MemoryStore{
		requests: map[string]models.Request{},
		fs:       fsys,
		path:     path,
	}
	if path == "" {
		return s, nil
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // nothing to restore
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	for id, d := range snap.Devices {
		s.requests[id] = models.Request{DeviceID: id, Status: d.Status, RequestedAt: d.Time}
	}
	s.history = snap.History
	s.seq = snap.Seq
	for i := range s.history {
		if s.history[i].EntryID == "" {
			s.history[i].EntryID = uuid.NewString()
		}
	}
	return nil
}

// persistLocked вызывается под s.mu.
func (s *MemoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	snap := snapshot{
		Devices:     make(map[string]snapshotDevice, len(s.requests)),
		History:     s.history,
		Seq:         s.seq,
		SavedAtUnix: time.Now().Unix(),
	}
	for id, r := range s.requests {
		snap.Devices[id] = snapshotDevice{Status: r.Status, Time: r.RequestedAt}
	}
	if snap.History == nil {
		snap.History = []models.HistoryEntry{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %w", ErrPersist, err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w %s: %w", ErrPersist, s.path, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPersist, s.path, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPersist, s.path, err)
	}
	return nil
}

func (s *MemoryStore) UpsertRequest(_ context.Context, r models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.DeviceID] = r
	return s.persistLocked()
}

func (s *MemoryStore) GetRequest(_ context.Context, deviceID string) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[deviceID]
	if !ok {
		return models.Request{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, deviceID string, st models.Status) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[deviceID]
	if !ok {
		return models.Request{}, ErrNotFound
	}
	r.Status = st
	s.requests[deviceID] = r
	return r, s.persistLocked()
}

func (s *MemoryStore) ListRequests(_ context.Context) ([]models.Request, error) {
	s.mu.Lock()
	out := make([]models.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortRequests(out)
	return out, nil
}

func (s *MemoryStore) CloseRequest(_ context.Context, deviceID string, build func(models.Request) models.HistoryEntry) (models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[deviceID]
	if !ok {
		return models.HistoryEntry{}, ErrNotFound
	}
	e := build(r)
	s.seq++
	e.Seq = s.seq
	e.EntryID = uuid.NewString()

	s.history = append([]models.HistoryEntry{e}, s.history...)
	delete(s.requests, deviceID)
	return e, s.persistLocked()
}

func (s *MemoryStore) ListHistory(_ context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (s *MemoryStore) indexLocked(entryID string) int {
	for i := range s.history {
		if s.history[i].EntryID == entryID {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) UpdateReason(_ context.Context, entryID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(entryID)
	if i < 0 {
		return ErrNotFound
	}
	s.history[i].Reason = reason
	return s.persistLocked()
}

func (s *MemoryStore) DeleteHistory(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(entryID)
	if i < 0 {
		return ErrNotFound
	}
	s.history = append(s.history[:i:i], s.history[i+1:]...)
	return s.persistLocked()
}
