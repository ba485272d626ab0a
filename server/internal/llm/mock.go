package llm

import (
	"context"
	"sync"

	"socialsim/server/internal/model"
)

// MockReply 是 Mock 按顺序返回的一次回复结果。
type MockReply struct {
	Reply Reply
	Err   error
}

// Mock 脚本化的协作方，用于测试与离线演示。并发安全。
//
// 各 Gate 非 nil 时，对应调用会阻塞到 Gate 可读（或 ctx 结束），用于构造异步竞态。
type Mock struct {
	mu sync.Mutex

	Replies  []MockReply
	HintText string
	HintErr  error
	Image    []byte
	Audio    []byte

	ReplyGate    chan struct{}
	HintGate     chan struct{}
	PortraitGate chan struct{}
	SpeechGate   chan struct{}

	ReplyCalls    int
	HintCalls     int
	PortraitCalls int
	SpeechCalls   int
	LastHistory   []model.ChatMessage
	LastSpeech    string
}

// NewMock 返回带默认数据的 Mock：空脚本时回复固定台词，肖像与语音为一小段数据。
func NewMock() *Mock {
	return &Mock{
		HintText: "1. Ask what they enjoy about it.\n2. Share a quick related story.\n3. Compliment their choice.",
		Image:    []byte("\x89PNG\r\n\x1a\nmock"),
		Audio:    make([]byte, 4800),
	}
}

func (m *Mock) Name() string { return "mock" }

// QueueReply 追加一条脚本回复。
func (m *Mock) QueueReply(r Reply, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies = append(m.Replies, MockReply{Reply: r, Err: err})
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mock) Reply(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (Reply, error) {
	m.mu.Lock()
	m.ReplyCalls++
	m.LastHistory = model.CloneMessages(history)
	gate := m.ReplyGate
	var next *MockReply
	if len(m.Replies) > 0 {
		r := m.Replies[0]
		m.Replies = m.Replies[1:]
		next = &r
	}
	m.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return Reply{}, wrap(m.Name(), CallReply, err)
	}
	if cred == "" {
		return Reply{}, wrap(m.Name(), CallReply, ErrNoCredential)
	}
	if next == nil {
		return Reply{
			Text: "That's interesting, tell me more.",
			Analysis: model.Analysis{
				Tone:       "Interested",
				Feedback:   "Good, keep the conversation going.",
				SocialCues: []string{},
			},
		}, nil
	}
	if next.Err != nil {
		return Reply{}, wrap(m.Name(), CallReply, next.Err)
	}
	return next.Reply, nil
}

func (m *Mock) Hint(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (string, error) {
	m.mu.Lock()
	m.HintCalls++
	gate, text, err := m.HintGate, m.HintText, m.HintErr
	m.mu.Unlock()

	if werr := wait(ctx, gate); werr != nil {
		return "", wrap(m.Name(), CallHint, werr)
	}
	if err != nil {
		return "", wrap(m.Name(), CallHint, err)
	}
	return hintText(text), nil
}

func (m *Mock) Portrait(ctx context.Context, cred string, scenario model.Scenario) []byte {
	m.mu.Lock()
	m.PortraitCalls++
	gate, img := m.PortraitGate, m.Image
	m.mu.Unlock()

	if wait(ctx, gate) != nil {
		return nil
	}
	return img
}

func (m *Mock) Speech(ctx context.Context, cred string, text string, gender model.Gender) []byte {
	m.mu.Lock()
	m.SpeechCalls++
	m.LastSpeech = text
	gate, pcm := m.SpeechGate, m.Audio
	m.mu.Unlock()

	if wait(ctx, gate) != nil {
		return nil
	}
	return pcm
}

// Calls 返回各类调用次数的快照。
func (m *Mock) Calls() (reply, hint, portrait, speech int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReplyCalls, m.HintCalls, m.PortraitCalls, m.SpeechCalls
}
