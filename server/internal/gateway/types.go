package gateway

import (
	"time"

	"socialsim/server/internal/model"
)

// EventType 定义了网关处理的消息类型
type EventType string

const (
	// 客户端上行：对应聊天界面上的操作
	EventTypeSendMessage    EventType = "send_message"    // 发送消息
	EventTypeRequestHint    EventType = "request_hint"    // 请求提示
	EventTypeToggleFeedback EventType = "toggle_feedback" // 切换分析面板
	EventTypeDismissNotice  EventType = "dismiss_notice"  // 关闭失败提示
	EventTypeReset          EventType = "reset"           // 结束会话

	// 服务端下行
	EventTypeEvent     EventType = "event"      // 事件流中的一条事件
	EventTypeAudio     EventType = "audio"      // 一段待播放的 PCM 语音
	EventTypeAudioStop EventType = "audio_stop" // 当前语音被停止或被取代
	EventTypeError     EventType = "error"      // 上行消息处理失败
)

// ClientMessage 客户端发送给网关的消息（WebSocket文本帧）
type ClientMessage struct {
	Type     EventType `json:"type"`
	EventID  string    `json:"event_id,omitempty"`  // 幂等去重
	Text     string    `json:"text,omitempty"`      // send_message 的文本
	ClientTS time.Time `json:"client_ts,omitempty"` // 客户端时间戳
}

// ServerMessage 网关发送给客户端的消息
type ServerMessage struct {
	Type  EventType    `json:"type"`
	Seq   int64        `json:"seq,omitempty"` // 连接级下行序号
	Event *model.Event `json:"event,omitempty"`

	// 语音帧：AudioData 在 JSON 中为 base64，格式为 s16le。
	AudioData  []byte `json:"audio_data,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	ServerTS time.Time `json:"server_ts"`
	Error    string    `json:"error,omitempty"`
}
