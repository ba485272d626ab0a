package audio

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Player 进程内唯一的播放控制器：单一播放槽位，新的 Play 取代正在播放的片段。
//
// 锁顺序：listener 在持有 Player 锁时被调用，
// 因此调用方不能在持有自己的锁（listener 也会获取的那把）时调用 Player 的方法。
type Player struct {
	mu         sync.Mutex
	newEngine  EngineFactory
	engine     Engine
	generation uint64
	cancel     context.CancelFunc
	speaking   bool
	closed     bool
	listener   func(speaking bool)
	logger     *log.Logger
	wg         sync.WaitGroup
}

func NewPlayer(factory EngineFactory, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.Default()
	}
	if factory == nil {
		factory = func() (Engine, error) { return ClockEngine{}, nil }
	}
	return &Player{newEngine: factory, logger: logger}
}

// OnSpeakingChange 注册说话状态变化的回调。
func (p *Player) OnSpeakingChange(fn func(speaking bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

// Play 解码并播放 PCM 数据，立即返回。
// 解码或引擎错误只记录日志，说话状态保持为 false。
func (p *Player) Play(pcm []byte) {
	clip := DecodePCM16(pcm)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.stopLocked()
	gen := p.generation

	if len(clip.Samples) == 0 {
		p.logger.Printf("[Audio] ⚠️ empty pcm payload (%d bytes), skip", len(pcm))
		p.setSpeakingLocked(false)
		return
	}

	eng, err := p.acquireLocked()
	if err != nil {
		p.logger.Printf("[Audio] ❌ create engine failed: %v", err)
		p.setSpeakingLocked(false)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.setSpeakingLocked(true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		err := eng.Play(ctx, clip)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Printf("[Audio] ❌ playback failed: %v", err)
		}
		p.finish(gen)
	}()
}

// Stop 停止当前播放并清除说话状态。
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.setSpeakingLocked(false)
}

// Speaking 当前是否有片段在播放。
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Wait 等待所有播放协程退出。
func (p *Player) Wait() {
	p.wg.Wait()
}

// Close 停止播放并拒绝后续请求。
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.setSpeakingLocked(false)
	p.mu.Unlock()
	p.wg.Wait()
}

// finish 只有仍是最新一次播放时才清除说话状态，被取代的片段结束不影响新片段。
func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	p.cancel = nil
	p.setSpeakingLocked(false)
}

func (p *Player) stopLocked() {
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Player) acquireLocked() (Engine, error) {
	if p.engine != nil {
		return p.engine, nil
	}
	eng, err := p.newEngine()
	if err != nil {
		return nil, err
	}
	p.engine = eng
	return eng, nil
}

func (p *Player) setSpeakingLocked(v bool) {
	if p.speaking == v {
		return
	}
	p.speaking = v
	if p.listener != nil {
		p.listener(v)
	}
}
