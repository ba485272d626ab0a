// Package audio 负责把合成语音的 PCM 数据解码并交给唯一的播放槽位。
package audio

import (
	"encoding/binary"
	"time"
)

// 合成语音的固定格式：24kHz 单声道 s16le。
const (
	SampleRate = 24000
	Channels   = 1
)

// Clip 是解码后的一段音频。PCM 保留原始字节，供需要转发原始数据的引擎使用。
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
	PCM        []byte
}

// DecodePCM16 把小端 16 位有符号 PCM 解码为 [-1,1] 的浮点样本（除以 32768）。
// 末尾不完整的奇数字节直接丢弃。
func DecodePCM16(b []byte) Clip {
	n := len(b) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		samples[i] = float32(v) / 32768
	}
	return Clip{
		Samples:    samples,
		SampleRate: SampleRate,
		Channels:   Channels,
		PCM:        b[:2*n],
	}
}

// Duration 按采样率计算时长。
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
