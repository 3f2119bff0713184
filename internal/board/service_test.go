package board

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callbell/internal/commands"
	"callbell/internal/models"
	"callbell/internal/repo"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Publish(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return 1
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type fakePub struct {
	sent []models.Command
	err  error
}

func (p *fakePub) PublishCommand(_ string, cmd models.Command) error {
	p.sent = append(p.sent, cmd)
	return p.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var reasons = []string{"마트에서 이동 도움", "상품 선택 도움", "결제 도움", "기타"}

func newService(t *testing.T) (*Service, *recorder, *clock) {
	t.Helper()
	st, err := repo.NewMemoryStore(nil, "")
	require.NoError(t, err)
	rec := &recorder{}
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(st, rec, commands.NewMailbox(), Options{
		Reasons:     reasons,
		OtherReason: "기타",
		Location:    time.UTC,
		Now:         clk.now,
	})
	return svc, rec, clk
}

func TestRegisterTwiceOverwrites(t *testing.T) {
	svc, rec, clk := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1")
	require.NoError(t, err)
	_, err = svc.MarkMoving(ctx, "A1")
	require.NoError(t, err)

	clk.advance(time.Minute)
	_, err = svc.Register(ctx, "A1")
	require.NoError(t, err)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.StatusNew, active[0].Status)
	assert.Equal(t, "2026-03-01 10:01:00", active[0].TimeStr)
	assert.Equal(t, "0초", active[0].Elapsed)

	assert.Equal(t, []string{"NEW_DEVICE:A1", "UPDATE", "NEW_DEVICE:A1"}, rec.all())
}

func TestRegisterRejectsBlankID(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Register(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestMarkMovingUnknown(t *testing.T) {
	svc, rec, _ := newService(t)
	_, err := svc.MarkMoving(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, rec.all())
	assert.Equal(t, models.CommandNone, svc.TakeCommand("ghost"))
}

func TestClearUnknownIsNotFound(t *testing.T) {
	svc, rec, _ := newService(t)
	_, err := svc.Clear(context.Background(), "ghost", "결제 도움", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, rec.all())

	h, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	for _, id := range []string{"D1", "D2", "D3"} {
		_, err := svc.Register(ctx, id)
		require.NoError(t, err)
		clk.advance(75 * time.Second)
		_, err = svc.Clear(ctx, id, "결제 도움", "")
		require.NoError(t, err)
	}

	h, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "D3", h[0].DeviceID)
	assert.Equal(t, "1분 15초", h[0].Duration)
	assert.Equal(t, "D1", h[2].DeviceID)
}

func TestClearOtherReason(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1")
	require.NoError(t, err)
	e, err := svc.Clear(ctx, "A1", "기타", "  화장실 안내  ")
	require.NoError(t, err)
	assert.Equal(t, "화장실 안내", e.Reason)

	_, err = svc.Register(ctx, "A2")
	require.NoError(t, err)
	e, err = svc.Clear(ctx, "A2", "기타", "   ")
	require.NoError(t, err)
	assert.Equal(t, "기타", e.Reason)

	_, err = svc.Register(ctx, "A3")
	require.NoError(t, err)
	e, err = svc.Clear(ctx, "A3", "결제 도움", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "결제 도움", e.Reason)
}

func TestCommandsIssuedOnMoveAndClear(t *testing.T) {
	svc, _, _ := newService(t)
	pub := &fakePub{}
	svc.SetPublisher(pub)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandNone, svc.TakeCommand("A1"))

	_, err = svc.MarkMoving(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandMove, svc.TakeCommand("A1"))
	assert.Equal(t, models.CommandNone, svc.TakeCommand("A1"))

	_, err = svc.Clear(ctx, "A1", "결제 도움", "")
	require.NoError(t, err)
	assert.Equal(t, models.CommandStop, svc.TakeCommand("A1"))
	assert.Equal(t, models.CommandNone, svc.TakeCommand("A1"))

	assert.Equal(t, []models.Command{models.CommandMove, models.CommandStop}, pub.sent)
}

func TestPublisherFailureDoesNotFailMove(t *testing.T) {
	svc, _, _ := newService(t)
	svc.SetPublisher(&fakePub{err: errors.New("broker down")})
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1")
	require.NoError(t, err)
	_, err = svc.MarkMoving(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandMove, svc.TakeCommand("A1"))
}

func TestEditAndDeleteHistory(t *testing.T) {
	svc, rec, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1")
	require.NoError(t, err)
	e, err := svc.Clear(ctx, "A1", "결제 도움", "")
	require.NoError(t, err)

	require.NoError(t, svc.EditReason(ctx, e.EntryID, "기타", "길 안내"))
	h, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, "길 안내", h[0].Reason)
	assert.False(t, svc.IsListedReason(h[0].Reason))

	require.NoError(t, svc.DeleteHistory(ctx, e.EntryID))
	assert.ErrorIs(t, svc.DeleteHistory(ctx, e.EntryID), ErrNotFound)
	assert.ErrorIs(t, svc.EditReason(ctx, "nope", "x", ""), ErrNotFound)

	assert.Equal(t, "UPDATE", rec.all()[len(rec.all())-1])
}

func TestFormatElapsed(t *testing.T) {
	cases := map[time.Duration]string{
		-time.Second:                  "0초",
		0:                             "0초",
		59 * time.Second:              "59초",
		60 * time.Second:              "1분 0초",
		3599 * time.Second:            "59분 59초",
		time.Hour:                     "1시간 0분",
		2*time.Hour + 7*time.Minute:   "2시간 7분",
		26*time.Hour + 59*time.Second: "26시간 0분",
	}
	for d, want := range cases {
		assert.Equal(t, want, FormatElapsed(d), d.String())
	}
}

// brokenDisk: снимок пишется во временный файл, но rename падает.
type brokenDisk struct {
	afero.Fs
	fail atomic.Bool
}

func (d *brokenDisk) Rename(oldname, newname string) error {
	if d.fail.Load() {
		return errors.New("disk full")
	}
	return d.Fs.Rename(oldname, newname)
}

func TestPersistFailureStillNotifies(t *testing.T) {
	disk := &brokenDisk{Fs: afero.NewMemMapFs()}
	st, err := repo.NewMemoryStore(disk, "data.json")
	require.NoError(t, err)
	rec := &recorder{}
	pub := &fakePub{}
	svc := NewService(st, rec, commands.NewMailbox(), Options{Reasons: reasons, OtherReason: "기타"})
	svc.SetPublisher(pub)
	ctx := context.Background()

	_, err = svc.Register(ctx, "A1")
	require.NoError(t, err)

	disk.fail.Store(true)
	r, err := svc.MarkMoving(ctx, "A1")
	require.ErrorIs(t, err, repo.ErrPersist)
	assert.Equal(t, models.StatusMoving, r.Status)
	assert.Equal(t, models.CommandMove, svc.TakeCommand("A1"))

	e, err := svc.Clear(ctx, "A1", "결제 도움", "")
	require.ErrorIs(t, err, repo.ErrPersist)
	assert.NotEmpty(t, e.EntryID)
	assert.Equal(t, models.CommandStop, svc.TakeCommand("A1"))

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	h, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, h, 1)

	require.ErrorIs(t, svc.EditReason(ctx, e.EntryID, "기타", "길 안내"), repo.ErrPersist)
	require.ErrorIs(t, svc.DeleteHistory(ctx, e.EntryID), repo.ErrPersist)

	_, err = svc.Register(ctx, "B2")
	require.ErrorIs(t, err, repo.ErrPersist)
	_, err = svc.Request(ctx, "B2")
	require.NoError(t, err)

	assert.Equal(t, []string{"NEW_DEVICE:A1", "UPDATE", "UPDATE", "UPDATE", "UPDATE", "NEW_DEVICE:B2"}, rec.all())
	assert.Equal(t, []models.Command{models.CommandMove, models.CommandStop}, pub.sent)
}

func TestListedReasonPassesThrough(t *testing.T) {
	svc, _, _ := newService(t)
	assert.Equal(t, "결제 도움 ", svc.ResolveReason("결제 도움 ", "텍스트"))
	assert.Equal(t, "텍스트", svc.ResolveReason("기타", " 텍스트 "))
}

func TestActiveShowsPendingCommand(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a?b")
	require.NoError(t, err)
	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.CommandNone, active[0].Pending)
	assert.Equal(t, "a%3Fb", active[0].PathID)

	_, err = svc.MarkMoving(ctx, "a?b")
	require.NoError(t, err)
	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CommandMove, active[0].Pending)

	svc.TakeCommand("a?b")
	active, err = svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CommandNone, active[0].Pending)
}

func TestRequestLookup(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, "A1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Register(ctx, "A1")
	require.NoError(t, err)
	r, err := svc.Request(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, r.Status)
}
