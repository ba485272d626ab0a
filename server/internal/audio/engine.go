package audio

import (
	"context"
	"time"
)

// Engine 是实际的播放设备。Play 阻塞到播放结束；ctx 取消表示被停止或被新的播放取代。
type Engine interface {
	Play(ctx context.Context, clip Clip) error
}

// EngineFactory 在第一次播放时调用一次，创建成功后整个进程复用。
type EngineFactory func() (Engine, error)

// ClockEngine 不输出声音，只按时长计时，用于无客户端的运行环境。
type ClockEngine struct{}

func (ClockEngine) Play(ctx context.Context, clip Clip) error {
	timer := time.NewTimer(clip.Duration())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
