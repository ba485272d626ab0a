package session

import (
	"time"

	"socialsim/server/internal/model"
)

const (
	previewRunes = 60
	emptyPreview = "No messages yet"
)

// Snapshot 根据当前会话状态生成存档，消息列表深拷贝。
func Snapshot(id string, now time.Time, scenario model.Scenario, messages []model.ChatMessage, rapport int) model.SavedSession {
	msgs := model.CloneMessages(messages)
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return model.SavedSession{
		ID:          id,
		Timestamp:   now,
		Scenario:    scenario,
		Messages:    msgs,
		Rapport:     rapport,
		PreviewText: Preview(messages),
	}
}

// Preview 取最后一条消息的前 60 个字符，截断时追加 "..."。
func Preview(messages []model.ChatMessage) string {
	if len(messages) == 0 {
		return emptyPreview
	}
	r := []rune(messages[len(messages)-1].Text)
	if len(r) <= previewRunes {
		return string(r)
	}
	return string(r[:previewRunes]) + "..."
}
