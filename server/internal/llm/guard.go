package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"socialsim/server/internal/config"
	"socialsim/server/internal/metrics"
	"socialsim/server/internal/model"
)

// Guarded 为任意 Collaborator 加上限流、单次调用超时与指标记录。
type Guarded struct {
	inner   Collaborator
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGuarded limit <= 0 表示不限流。
func NewGuarded(inner Collaborator, limit float64, burst int, timeout time.Duration) *Guarded {
	l := rate.NewLimiter(rate.Inf, 0)
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &Guarded{inner: inner, limiter: l, timeout: timeout}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := func() {}
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("rate limit: %w", err)
	}
	return ctx, cancel, nil
}

func observe(call Call, ok bool, start time.Time) {
	status := "ok"
	if !ok {
		status = "error"
	}
	metrics.RecordCollaboratorCall(string(call), status, time.Since(start))
}

func (g *Guarded) Reply(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (Reply, error) {
	start := time.Now()
	ctx, cancel, err := g.begin(ctx)
	if err != nil {
		observe(CallReply, false, start)
		return Reply{}, wrap(g.Name(), CallReply, err)
	}
	defer cancel()
	r, err := g.inner.Reply(ctx, cred, history, scenario)
	observe(CallReply, err == nil, start)
	return r, wrap(g.Name(), CallReply, err)
}

func (g *Guarded) Hint(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (string, error) {
	start := time.Now()
	ctx, cancel, err := g.begin(ctx)
	if err != nil {
		observe(CallHint, false, start)
		return "", wrap(g.Name(), CallHint, err)
	}
	defer cancel()
	h, err := g.inner.Hint(ctx, cred, history, scenario)
	observe(CallHint, err == nil, start)
	return h, wrap(g.Name(), CallHint, err)
}

func (g *Guarded) Portrait(ctx context.Context, cred string, scenario model.Scenario) []byte {
	start := time.Now()
	ctx, cancel, err := g.begin(ctx)
	if err != nil {
		observe(CallPortrait, false, start)
		return nil
	}
	defer cancel()
	img := g.inner.Portrait(ctx, cred, scenario)
	observe(CallPortrait, img != nil, start)
	return img
}

func (g *Guarded) Speech(ctx context.Context, cred string, text string, gender model.Gender) []byte {
	start := time.Now()
	ctx, cancel, err := g.begin(ctx)
	if err != nil {
		observe(CallSpeech, false, start)
		return nil
	}
	defer cancel()
	pcm := g.inner.Speech(ctx, cred, text, gender)
	observe(CallSpeech, pcm != nil, start)
	return pcm
}

// New 按配置创建协作方，并统一包上 Guarded。
func New(cfg config.LLMConfig, logger *log.Logger) (Collaborator, error) {
	if logger == nil {
		logger = log.Default()
	}
	var inner Collaborator
	switch cfg.Provider {
	case "gemini":
		inner = NewGeminiCollaborator(cfg.Gemini, logger)
	case "openai":
		o := NewOpenAICollaborator(cfg.OpenAI, logger)
		logger.Printf("[LLM] using %s", o.describe())
		inner = o
	case "mock":
		inner = NewMock()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	return NewGuarded(inner, cfg.RateLimit, cfg.Burst, cfg.Timeout), nil
}
