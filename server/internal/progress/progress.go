// Package progress 实现用户成长记录（等级/XP/成就/计数/情绪日志）的纯函数转换。
//
// 约定：所有函数都接收一个 UserProgress 值并返回新的值，不修改入参，
// 调用方（orchestrator）在持锁状态下整体替换，保证外部不会观察到部分更新。
package progress

import (
	"socialsim/server/internal/model"
)

const (
	// XPBase 每级所需 XP 的基数：升到下一级需要 level*XPBase。
	XPBase = 100
	// MessageXP 每发送一条消息奖励的 XP。
	MessageXP = 10
	// SessionBonusXP 完成一次会话的奖励。
	SessionBonusXP = 50
	// SessionCompletionThreshold 消息数严格大于该值时重置才算完成会话。
	SessionCompletionThreshold = 5
	// RapportBaseline 会话初始好感度，也是 HighestRapport 的种子值。
	RapportBaseline = 50
)

// Default 返回全新用户的成长记录。
func Default() model.UserProgress {
	return model.UserProgress{
		Level:                1,
		CurrentXP:            0,
		XPToNextLevel:        XPBase,
		UnlockedAchievements: []string{},
		HighestRapport:       RapportBaseline,
		MoodHistory:          []model.MoodEntry{},
	}
}

// Needed 返回当前等级升级所需的 XP。
func Needed(level int) int {
	return level * XPBase
}

// ApplyXP 增加 XP 并循环结算升级，单次大额奖励可以连跨多级。
// 负数视为 0。返回值满足 0 <= CurrentXP < Level*XPBase。
func ApplyXP(p model.UserProgress, amount int) model.UserProgress {
	out := p.Clone()
	if amount < 0 {
		amount = 0
	}
	if out.Level < 1 {
		out.Level = 1
	}
	out.CurrentXP += amount
	needed := Needed(out.Level)
	for out.CurrentXP >= needed {
		out.CurrentXP -= needed
		out.Level++
		needed = Needed(out.Level)
	}
	out.XPToNextLevel = needed
	return out
}

// MarkMessageSent 消息计数 +1。
func MarkMessageSent(p model.UserProgress) model.UserProgress {
	out := p.Clone()
	out.TotalMessagesSent++
	return out
}

// RecordRapport 只会抬高 HighestRapport，不会降低。
func RecordRapport(p model.UserProgress, value int) model.UserProgress {
	out := p.Clone()
	if value > out.HighestRapport {
		out.HighestRapport = value
	}
	return out
}

// MarkSessionCompleted 完成会话计数 +1。
func MarkSessionCompleted(p model.UserProgress) model.UserProgress {
	out := p.Clone()
	out.SessionsCompleted++
	return out
}

// MarkTutorialCompleted 单向置位。
func MarkTutorialCompleted(p model.UserProgress) model.UserProgress {
	out := p.Clone()
	out.TutorialCompleted = true
	return out
}

// RecordMood 追加情绪打卡。
func RecordMood(p model.UserProgress, entry model.MoodEntry) model.UserProgress {
	out := p.Clone()
	out.MoodHistory = append(out.MoodHistory, entry)
	return out
}

// Unlock 把尚未解锁的 id 加入解锁集合，并在同一次转换中发放奖励 XP。
// 返回实际新增的 id；全部已解锁时不发放任何奖励。
func Unlock(p model.UserProgress, ids []string, reward int) (model.UserProgress, []string) {
	out := p.Clone()
	var added []string
	for _, id := range ids {
		if out.HasAchievement(id) || contains(added, id) {
			continue
		}
		added = append(added, id)
	}
	if len(added) == 0 {
		return out, nil
	}
	out.UnlockedAchievements = append(out.UnlockedAchievements, added...)
	return ApplyXP(out, reward), added
}

// Normalize 修复从存储读取的记录：补齐缺失字段并重新结算溢出的 XP。
func Normalize(p model.UserProgress) model.UserProgress {
	out := p.Clone()
	if out.Level < 1 {
		out.Level = 1
	}
	if out.CurrentXP < 0 {
		out.CurrentXP = 0
	}
	if out.UnlockedAchievements == nil {
		out.UnlockedAchievements = []string{}
	}
	if out.MoodHistory == nil {
		out.MoodHistory = []model.MoodEntry{}
	}
	if out.HighestRapport < RapportBaseline {
		out.HighestRapport = RapportBaseline
	}
	return ApplyXP(out, 0)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
