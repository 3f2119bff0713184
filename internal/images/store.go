package images

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrNoImage       = errors.New("no image")
	ErrInvalidDevice = errors.New("invalid device id")
	ErrTooLarge      = errors.New("image too large")
)

// Store хранит последний кадр каждого устройства: <dir>/<device_id>.jpg, перезапись на месте.
type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
}

func NewStore(fsys afero.Fs, dir string, maxBytes int64) (*Store, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir %s: %w", dir, err)
	}
	return &Store{fs: fsys, dir: dir, maxBytes: maxBytes}, nil
}

func (s *Store) pathFor(deviceID string) (string, error) {
	if deviceID == "" || deviceID == "." || deviceID == ".." ||
		strings.ContainsAny(deviceID, `/\`) || strings.ContainsRune(deviceID, 0) {
		return "", ErrInvalidDevice
	}
	return filepath.Join(s.dir, deviceID+".jpg"), nil
}

// Save пишет во временный файл и переименовывает, чтобы читатель не увидел половину кадра.
func (s *Store) Save(deviceID string, r io.Reader) (int64, error) {
	path, err := s.pathFor(deviceID)
	if err != nil {
		return 0, err
	}
	tmp := filepath.Join(s.dir, "."+deviceID+"."+uuid.NewString()+".tmp")
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("save image %s: %w", deviceID, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("save image %s: %w", deviceID, err)
	}
	return n, nil
}

// Open возвращает последний кадр устройства.
func (s *Store) Open(deviceID string) ([]byte, time.Time, error) {
	path, err := s.pathFor(deviceID)
	if err != nil {
		return nil, time.Time{}, err
	}
	fi, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, ErrNoImage
		}
		return nil, time.Time{}, err
	}
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, ErrNoImage
		}
		return nil, time.Time{}, err
	}
	return b, fi.ModTime(), nil
}
