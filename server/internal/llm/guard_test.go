package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsim/server/internal/config"
	"socialsim/server/internal/model"
)

func TestGuarded_WrapsErrors(t *testing.T) {
	m := NewMock()
	boom := errors.New("boom")
	m.QueueReply(Reply{}, boom)
	g := NewGuarded(m, 0, 0, time.Second)

	_, err := g.Reply(context.Background(), "key", nil, model.Scenario{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CallReply, ce.Call)
	assert.Equal(t, "mock", ce.Provider)
}

func TestGuarded_TimeoutCancelsBlockedCall(t *testing.T) {
	m := NewMock()
	m.ReplyGate = make(chan struct{})
	g := NewGuarded(m, 0, 0, 20*time.Millisecond)

	_, err := g.Reply(context.Background(), "key", nil, model.Scenario{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	m.SpeechGate = make(chan struct{})
	assert.Nil(t, g.Speech(context.Background(), "key", "hi", model.GenderMale))
}

func TestGuarded_RateLimitHonoursContext(t *testing.T) {
	g := NewGuarded(NewMock(), 0.001, 1, 0)
	ctx := context.Background()

	_, err := g.Hint(ctx, "key", nil, model.Scenario{})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = g.Hint(short, "key", nil, model.Scenario{})
	assert.Error(t, err, "second call exceeds the bucket and cannot wait past the deadline")
}

func TestMock_Script(t *testing.T) {
	m := NewMock()
	m.QueueReply(Reply{Text: "first"}, nil)
	ctx := context.Background()

	r, err := m.Reply(ctx, "key", []model.ChatMessage{{Text: "hi"}}, model.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, "first", r.Text)

	r, err = m.Reply(ctx, "key", nil, model.Scenario{})
	require.NoError(t, err)
	assert.NotEmpty(t, r.Text, "empty script falls back to a canned reply")

	_, err = m.Reply(ctx, "", nil, model.Scenario{})
	assert.ErrorIs(t, err, ErrNoCredential)

	m.HintText = ""
	h, err := m.Hint(ctx, "key", nil, model.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, FallbackHint, h)

	reply, hint, _, _ := m.Calls()
	assert.Equal(t, 3, reply)
	assert.Equal(t, 1, hint)
}

func TestNew(t *testing.T) {
	cfg := config.Default().LLM
	for _, p := range []string{"gemini", "openai", "mock"} {
		cfg.Provider = p
		c, err := New(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, p, c.Name())
	}
	cfg.Provider = "nope"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
