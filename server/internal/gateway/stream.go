package gateway

import (
	"context"
	"time"

	"socialsim/server/internal/audio"
)

// StreamEngine 是 audio.Engine 的网关实现：把 PCM 推给所有浏览器，
// 按片段时长计时作为“播放结束”；被停止或取代时通知客户端停播。
type StreamEngine struct {
	hub *Hub
}

func NewStreamEngine(hub *Hub) *StreamEngine {
	return &StreamEngine{hub: hub}
}

func (e *StreamEngine) Play(ctx context.Context, clip audio.Clip) error {
	d := clip.Duration()
	e.hub.broadcast(&ServerMessage{
		Type:       EventTypeAudio,
		AudioData:  clip.PCM,
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
		DurationMS: d.Milliseconds(),
	})

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		e.hub.broadcast(&ServerMessage{Type: EventTypeAudioStop})
		return ctx.Err()
	}
}
