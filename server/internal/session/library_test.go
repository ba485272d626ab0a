package session

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsim/server/internal/model"
)

type fakePersister struct {
	mu      sync.Mutex
	initial []model.SavedSession
	saved   [][]model.SavedSession
	loads   int
	err     error
}

func (f *fakePersister) SaveSessions(_ context.Context, list []model.SavedSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, list)
	return f.err
}

func (f *fakePersister) LoadSessions(_ context.Context) []model.SavedSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.initial
}

func newLibrary(p *fakePersister) *Library {
	return NewLibrary(p, log.New(io.Discard, "", 0))
}

func TestLibrary_SaveNewestFirstAndPersists(t *testing.T) {
	p := &fakePersister{initial: []model.SavedSession{{ID: "old"}}}
	lib := newLibrary(p)
	ctx := context.Background()

	require.NoError(t, lib.Save(ctx, model.SavedSession{ID: "a"}))
	require.NoError(t, lib.Save(ctx, model.SavedSession{ID: "b"}))

	list := lib.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "old", list[2].ID)

	assert.Equal(t, 1, p.loads, "list is loaded once")
	require.Len(t, p.saved, 2)
	assert.Len(t, p.saved[1], 3)
}

func TestLibrary_Delete(t *testing.T) {
	p := &fakePersister{initial: []model.SavedSession{{ID: "x"}, {ID: "y"}}}
	lib := newLibrary(p)
	ctx := context.Background()

	require.NoError(t, lib.Delete(ctx, "x"))
	list := lib.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "y", list[0].ID)
	require.Len(t, p.saved, 1)

	err := lib.Delete(ctx, "x")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Len(t, p.saved, 1, "missing id does not persist")
}

func TestLibrary_GetReturnsCopy(t *testing.T) {
	lib := newLibrary(&fakePersister{})
	ctx := context.Background()
	require.NoError(t, lib.Save(ctx, model.SavedSession{
		ID:       "s",
		Messages: []model.ChatMessage{{ID: "m", Text: "hello"}},
	}))

	got, err := lib.Get(ctx, "s")
	require.NoError(t, err)
	got.Messages[0].Text = "changed"

	again, err := lib.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Text)

	_, err = lib.Get(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLibrary_PersistFailureKeepsMemory(t *testing.T) {
	p := &fakePersister{err: errors.New("disk full")}
	lib := newLibrary(p)
	ctx := context.Background()

	err := lib.Save(ctx, model.SavedSession{ID: "s"})
	assert.Error(t, err)
	assert.Len(t, lib.List(ctx), 1)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "No messages yet", Preview(nil))

	short := []model.ChatMessage{{Text: "first"}, {Text: "last"}}
	assert.Equal(t, "last", Preview(short))

	exact := strings.Repeat("a", 60)
	assert.Equal(t, exact, Preview([]model.ChatMessage{{Text: exact}}))

	long := strings.Repeat("é", 61)
	assert.Equal(t, strings.Repeat("é", 60)+"...", Preview([]model.ChatMessage{{Text: long}}))
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sc := model.Scenario{ID: "gym-spotter", Gender: model.GenderMale}
	msgs := []model.ChatMessage{{ID: "m1", Text: "hey", Analysis: &model.Analysis{SocialCues: []string{"smile"}}}}

	s := Snapshot("save_1", now, sc, msgs, 61)
	assert.Equal(t, "save_1", s.ID)
	assert.Equal(t, now, s.Timestamp)
	assert.Equal(t, model.GenderMale, s.Scenario.Gender)
	assert.Equal(t, 61, s.Rapport)
	assert.Equal(t, "hey", s.PreviewText)

	msgs[0].Analysis.SocialCues[0] = "frown"
	assert.Equal(t, "smile", s.Messages[0].Analysis.SocialCues[0])

	empty := Snapshot("save_2", now, sc, nil, 50)
	assert.NotNil(t, empty.Messages)
	assert.Equal(t, "No messages yet", empty.PreviewText)
}
