// Package achievement 定义成就目录，并根据用户成长记录与触发类型判定新解锁的成就。
package achievement

import (
	"socialsim/server/internal/model"
	"socialsim/server/internal/progress"
)

// Trigger 触发成就检查的事件类别。
type Trigger string

const (
	TriggerMessage  Trigger = "message"
	TriggerRapport  Trigger = "rapport"
	TriggerSession  Trigger = "session"
	TriggerTutorial Trigger = "tutorial"
)

const (
	IDGraduate          = "graduate"
	IDFirstStep         = "first_step"
	IDSmoothOperator    = "smooth_operator"
	IDConversationalist = "conversationalist"
	IDSocialButterfly   = "social_butterfly"
)

type rule struct {
	achievement model.Achievement
	unlocked    func(p model.UserProgress, trigger Trigger) bool
}

var rules = []rule{
	{
		achievement: model.Achievement{
			ID:          IDGraduate,
			Title:       "Academy Graduate",
			Description: "Pass the Social Skills 101 Course.",
			Icon:        "trophy",
			XPReward:    300,
		},
		unlocked: func(_ model.UserProgress, trigger Trigger) bool { return trigger == TriggerTutorial },
	},
	{
		achievement: model.Achievement{
			ID:          IDFirstStep,
			Title:       "Hello World",
			Description: "Send your first message.",
			Icon:        "zap",
			XPReward:    50,
		},
		unlocked: func(p model.UserProgress, _ Trigger) bool { return p.TotalMessagesSent >= 1 },
	},
	{
		achievement: model.Achievement{
			ID:          IDSmoothOperator,
			Title:       "Smooth Operator",
			Description: "Reach 90% Rapport in a conversation.",
			Icon:        "heart",
			XPReward:    200,
		},
		unlocked: func(p model.UserProgress, _ Trigger) bool { return p.HighestRapport >= 90 },
	},
	{
		achievement: model.Achievement{
			ID:          IDConversationalist,
			Title:       "Chatterbox",
			Description: "Send 20 messages total.",
			Icon:        "star",
			XPReward:    150,
		},
		unlocked: func(p model.UserProgress, _ Trigger) bool { return p.TotalMessagesSent >= 20 },
	},
	{
		achievement: model.Achievement{
			ID:          IDSocialButterfly,
			Title:       "Social Butterfly",
			Description: "Complete 5 different sessions.",
			Icon:        "trophy",
			XPReward:    500,
		},
		unlocked: func(p model.UserProgress, _ Trigger) bool { return p.SessionsCompleted >= 5 },
	},
}

// Catalog 返回成就目录的副本（目录顺序即判定顺序）。
func Catalog() []model.Achievement {
	out := make([]model.Achievement, len(rules))
	for i, r := range rules {
		out[i] = r.achievement
	}
	return out
}

// Find 按 id 查找成就。
func Find(id string) (model.Achievement, bool) {
	for _, r := range rules {
		if r.achievement.ID == id {
			return r.achievement, true
		}
	}
	return model.Achievement{}, false
}

// Evaluate 返回当前满足条件且尚未解锁的成就，纯函数。
func Evaluate(p model.UserProgress, trigger Trigger) []model.Achievement {
	var out []model.Achievement
	for _, r := range rules {
		if p.HasAchievement(r.achievement.ID) {
			continue
		}
		if r.unlocked(p, trigger) {
			out = append(out, r.achievement)
		}
	}
	return out
}

// Award 判定并在一次转换中完成“标记解锁 + 发放奖励 XP”。
// 多个成就同时解锁时奖励合并为一次 XP 结算，所有解锁项都会返回给调用方。
func Award(p model.UserProgress, trigger Trigger) (model.UserProgress, []model.Achievement) {
	found := Evaluate(p, trigger)
	if len(found) == 0 {
		return p, nil
	}
	ids := make([]string, len(found))
	reward := 0
	for i, a := range found {
		ids[i] = a.ID
		reward += a.XPReward
	}
	next, _ := progress.Unlock(p, ids, reward)
	return next, found
}

// TotalReward 合计奖励。
func TotalReward(list []model.Achievement) int {
	sum := 0
	for _, a := range list {
		sum += a.XPReward
	}
	return sum
}

// Status 成就目录条目加上当前用户的解锁状态。
type Status struct {
	model.Achievement
	Unlocked bool `json:"unlocked"`
}

func Statuses(p model.UserProgress) []Status {
	out := make([]Status, len(rules))
	for i, r := range rules {
		out[i] = Status{Achievement: r.achievement, Unlocked: p.HasAchievement(r.achievement.ID)}
	}
	return out
}
