package orchestrator

import (
	"time"

	"socialsim/server/internal/llm"
	"socialsim/server/internal/model"
	"socialsim/server/internal/progress"
)

// Reduce 只做“事实归约”，不触发外部调用。
// 约定：会话状态只能经由这里修改；事件里携带的指针数据会被拷贝，调用方之后修改不影响状态。
func Reduce(state *model.SessionState, evt model.Event, now time.Time) *model.SessionState {
	if state == nil {
		return nil
	}

	switch evt.Type {
	case model.EventScenarioSelected:
		if evt.Scenario != nil {
			sc := *evt.Scenario
			state.Pending = &sc
			state.Phase = model.PhaseConfiguring
		}
	case model.EventConfigurationCancelled:
		state.Pending = nil
		if state.Scenario == nil {
			state.Phase = model.PhaseIdle
		}
	case model.EventSessionInitializing:
		if evt.Scenario == nil {
			return state
		}
		sc := *evt.Scenario
		state.ID = evt.SessionID
		state.Scenario = &sc
		state.Pending = nil
		state.Messages = []model.ChatMessage{}
		state.Rapport = progress.RapportBaseline
		state.ShowFeedback = true
		state.Typing = false
		state.GeneratingAvatar = false
		state.Hint = ""
		state.Notice = ""
		state.Phase = model.PhaseInitializing
	case model.EventModelMessage:
		// 模型消息：开场白或回复。好感度取事件里已经钳制好的值。
		if evt.Message != nil {
			state.Messages = append(state.Messages, model.CloneMessages([]model.ChatMessage{*evt.Message})...)
			state.Rapport = clampRapport(evt.Rapport)
			state.Typing = false
			state.Phase = model.PhaseActive
		}
	case model.EventUserMessage:
		// 乐观更新：先落用户消息再等回复。
		if evt.Message != nil {
			state.Messages = append(state.Messages, *evt.Message)
			state.Typing = true
			state.Hint = ""
			state.Notice = ""
			state.Phase = model.PhaseAwaitingReply
		}
	case model.EventTurnFailed:
		state.Typing = false
		state.Notice = evt.Text
		if state.Scenario != nil {
			state.Phase = model.PhaseActive
		}
	case model.EventAvatarPending:
		state.GeneratingAvatar = true
	case model.EventAvatarReady:
		if state.Scenario != nil && evt.Text != "" {
			state.Scenario.AvatarURL = evt.Text
		}
		state.GeneratingAvatar = false
	case model.EventAvatarDone:
		state.GeneratingAvatar = false
	case model.EventHintPending, model.EventHintReady:
		state.Hint = evt.Text
	case model.EventFeedbackToggled:
		state.ShowFeedback = evt.Flag
	case model.EventNoticeDismissed:
		state.Notice = ""
	case model.EventSpeaking:
		state.Speaking = evt.Flag
	case model.EventSessionReset:
		state.ID = ""
		state.Phase = model.PhaseIdle
		state.Scenario = nil
		state.Pending = nil
		state.Messages = []model.ChatMessage{}
		state.Rapport = progress.RapportBaseline
		state.Typing = false
		state.GeneratingAvatar = false
		state.Hint = ""
		state.Notice = ""
	case model.EventSessionLoaded:
		// 载入存档：整体替换，直接进入 active。
		if evt.Saved == nil {
			return state
		}
		sc := evt.Saved.Scenario
		state.ID = evt.SessionID
		state.Scenario = &sc
		state.Pending = nil
		state.Messages = model.CloneMessages(evt.Saved.Messages)
		if state.Messages == nil {
			state.Messages = []model.ChatMessage{}
		}
		state.Rapport = clampRapport(evt.Saved.Rapport)
		state.ShowFeedback = true
		state.Typing = false
		state.GeneratingAvatar = false
		state.Hint = ""
		state.Notice = ""
		state.Phase = model.PhaseActive
	}

	return state
}

func clampRapport(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// clampDelta 协作方的实现不受控，单轮变化在这里再钳制一次。
func clampDelta(v int) int {
	if v > llm.MaxRapportDelta {
		return llm.MaxRapportDelta
	}
	if v < -llm.MaxRapportDelta {
		return -llm.MaxRapportDelta
	}
	return v
}
