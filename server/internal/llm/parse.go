package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"socialsim/server/internal/model"
)

// MaxRapportDelta 单轮好感度变化的上限（绝对值）。
const MaxRapportDelta = 10

type replyPayload struct {
	CharacterReply  *string  `json:"characterReply"`
	InternalThought string   `json:"internalThought"`
	CoachFeedback   string   `json:"coachFeedback"`
	RapportDelta    float64  `json:"rapportDelta"`
	SocialCues      []string `json:"socialCues"`
	Tone            string   `json:"tone"`
}

// parseReply 解析结构化回复。没有 characterReply 视为失败，不接受部分成功。
func parseReply(raw string) (Reply, error) {
	text := extractJSON(raw)
	if text == "" {
		return Reply{}, ErrEmptyResponse
	}
	var p replyPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if p.CharacterReply == nil || strings.TrimSpace(*p.CharacterReply) == "" {
		return Reply{}, fmt.Errorf("%w: missing characterReply", ErrMalformedReply)
	}
	cues := p.SocialCues
	if cues == nil {
		cues = []string{}
	}
	return Reply{
		Text:            *p.CharacterReply,
		InternalThought: p.InternalThought,
		Analysis: model.Analysis{
			Tone:         p.Tone,
			RapportDelta: clampDelta(p.RapportDelta),
			Feedback:     p.CoachFeedback,
			SocialCues:   cues,
		},
	}, nil
}

func clampDelta(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	d := int(math.Round(v))
	if d > MaxRapportDelta {
		return MaxRapportDelta
	}
	if d < -MaxRapportDelta {
		return -MaxRapportDelta
	}
	return d
}

// extractJSON 去掉 markdown 代码块，截取第一个 '{' 到最后一个 '}'。
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
