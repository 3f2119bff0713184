package images

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, max int64) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := NewStore(fsys, "uploads", max)
	require.NoError(t, err)
	return s, fsys
}

func TestOpenBeforeSave(t *testing.T) {
	s, _ := newStore(t, 0)
	_, _, err := s.Open("A1")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestSaveOverwritesInPlace(t *testing.T) {
	s, fsys := newStore(t, 0)

	_, err := s.Save("A1", bytes.NewReader([]byte("frame-1")))
	require.NoError(t, err)
	n, err := s.Save("A1", bytes.NewReader([]byte("frame-2")))
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	b, _, err := s.Open("A1")
	require.NoError(t, err)
	assert.Equal(t, "frame-2", string(b))

	entries, err := afero.ReadDir(fsys, "uploads")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A1.jpg", entries[0].Name())
}

func TestSaveRejectsTraversal(t *testing.T) {
	s, _ := newStore(t, 0)
	for _, id := range []string{"", "..", "../etc", `a\b`, "x/y"} {
		_, err := s.Save(id, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidDevice, id)
	}
}

func TestSaveSizeLimit(t *testing.T) {
	s, fsys := newStore(t, 4)

	_, err := s.Save("A1", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)
	_, _, err = s.Open("A1")
	assert.ErrorIs(t, err, ErrNoImage)

	entries, err := afero.ReadDir(fsys, "uploads")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Save("A1", strings.NewReader("1234"))
	require.NoError(t, err)
}
