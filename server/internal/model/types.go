package model

import "time"

// Category 场景分类。
type Category string

const (
	CategorySocial       Category = "Social Skills"
	CategoryDating       Category = "Dating & Flirting"
	CategoryProfessional Category = "Professional"
)

// Difficulty 场景难度档位。
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Gender 对话伙伴的性别变体，在开始模拟时写入场景实例。
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid 判断是否为可选的伙伴变体。
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Role 消息发送方。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Scenario 是静态目录中的场景模板。
// 约定：目录模板永不修改；开始会话时通过 WithGender 生成独立的场景实例。
type Scenario struct {
	ID             string     `json:"id" yaml:"id"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description" yaml:"description"`
	Category       Category   `json:"category" yaml:"category"`
	Difficulty     Difficulty `json:"difficulty" yaml:"difficulty"`
	SystemPrompt   string     `json:"systemPrompt" yaml:"system_prompt"`
	InitialMessage string     `json:"initialMessage" yaml:"initial_message"`
	AvatarURL      string     `json:"avatarUrl" yaml:"avatar_url"`
	PartnerName    string     `json:"partnerName" yaml:"partner_name"`
	Gender         Gender     `json:"gender,omitempty" yaml:"gender,omitempty"`
	RequiredLevel  int        `json:"requiredLevel,omitempty" yaml:"required_level"`
}

// WithGender 返回带有伙伴变体的场景实例（值拷贝，不影响模板）。
func (s Scenario) WithGender(g Gender) Scenario {
	s.Gender = g
	return s
}

// Analysis 是模型消息附带的教练分析，由 AI 协作方在消息创建时一次性生成。
type Analysis struct {
	Tone string `json:"tone"`
	// RapportDelta 对应原始记录中的 score 字段，是对好感度的增量而非绝对值。
	RapportDelta int      `json:"score"`
	Feedback     string   `json:"feedback"`
	SocialCues   []string `json:"socialCues"`
	Suggestion   string   `json:"suggestion"`
}

// ChatMessage 表示对话中的一条消息，追加后不可修改。
type ChatMessage struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	Analysis        *Analysis `json:"analysis,omitempty"`
	InternalThought string    `json:"internalThought,omitempty"`
}

// Phase 是会话状态机的阶段。
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseConfiguring   Phase = "configuring"
	PhaseInitializing  Phase = "initializing"
	PhaseActive        Phase = "active"
	PhaseAwaitingReply Phase = "awaiting_reply"
)

// SessionState 保存当前唯一活跃对话的全部状态。
// 只能由 orchestrator 通过 Reduce 修改。
type SessionState struct {
	// ID 每次开始或载入会话时重新分配，同时作为事件流的 key。
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`

	// Scenario 为 nil 表示没有活跃会话。
	Scenario *Scenario `json:"scenario"`
	// Pending 是 configuring 阶段已选中、尚未选择变体的模板。
	Pending *Scenario `json:"pending,omitempty"`

	Messages []ChatMessage `json:"messages"`
	// Rapport 好感度，范围 [0,100]。
	Rapport int `json:"rapportScore"`

	Typing           bool   `json:"isTyping"`
	ShowFeedback     bool   `json:"showFeedback"`
	GeneratingAvatar bool   `json:"isGeneratingImage"`
	Speaking         bool   `json:"isSpeaking"`
	Hint             string `json:"hint,omitempty"`
	Notice           string `json:"notice,omitempty"`
}

// Clone 深拷贝，供 API 快照与异步任务使用。
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Scenario != nil {
		sc := *s.Scenario
		out.Scenario = &sc
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	out.Messages = CloneMessages(s.Messages)
	return &out
}

// CloneMessages 深拷贝消息列表（包括分析结构）。
func CloneMessages(in []ChatMessage) []ChatMessage {
	if in == nil {
		return nil
	}
	out := make([]ChatMessage, len(in))
	for i, m := range in {
		out[i] = m
		if m.Analysis != nil {
			a := *m.Analysis
			if m.Analysis.SocialCues != nil {
				a.SocialCues = make([]string, len(m.Analysis.SocialCues))
				copy(a.SocialCues, m.Analysis.SocialCues)
			}
			out[i].Analysis = &a
		}
	}
	return out
}

// MoodEntry 情绪打卡记录。
type MoodEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Emoji     string    `json:"emoji"`
	Tag       string    `json:"tag"`
}

// UserProgress 是全局唯一、需要持久化的用户成长记录。
type UserProgress struct {
	Level                int         `json:"level"`
	CurrentXP            int         `json:"currentXp"`
	XPToNextLevel        int         `json:"xpToNextLevel"`
	UnlockedAchievements []string    `json:"unlockedAchievements"`
	TotalMessagesSent    int         `json:"totalMessagesSent"`
	HighestRapport       int         `json:"highestRapport"`
	SessionsCompleted    int         `json:"sessionsCompleted"`
	TutorialCompleted    bool        `json:"tutorialCompleted"`
	MoodHistory          []MoodEntry `json:"moodHistory"`
}

// HasAchievement 判断成就是否已解锁。
func (p UserProgress) HasAchievement(id string) bool {
	for _, got := range p.UnlockedAchievements {
		if got == id {
			return true
		}
	}
	return false
}

// Clone 深拷贝切片字段，保证纯函数转换不会共享底层数组。
func (p UserProgress) Clone() UserProgress {
	out := p
	if p.UnlockedAchievements != nil {
		out.UnlockedAchievements = make([]string, len(p.UnlockedAchievements))
		copy(out.UnlockedAchievements, p.UnlockedAchievements)
	}
	if p.MoodHistory != nil {
		out.MoodHistory = make([]MoodEntry, len(p.MoodHistory))
		copy(out.MoodHistory, p.MoodHistory)
	}
	return out
}

// SavedSession 是用户主动保存的会话快照，创建后不可修改。
type SavedSession struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Scenario    Scenario      `json:"scenario"`
	Messages    []ChatMessage `json:"messages"`
	Rapport     int           `json:"rapportScore"`
	PreviewText string        `json:"previewText"`
}

// Achievement 静态成就目录条目，解锁状态保存在 UserProgress 中。
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	XPReward    int    `json:"xpReward"`
}

// Event 表示事件流中的一条记录，推送给客户端并可回放。
type Event struct {
	// Seq 由 timeline 分配的单调序号。
	Seq int64 `json:"seq,omitempty"`
	// SessionID 由编排器补齐。
	SessionID string `json:"session_id,omitempty"`
	// EventID 用于去重与重试幂等。
	EventID string `json:"event_id,omitempty"`

	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	Message     *ChatMessage  `json:"message,omitempty"`
	Achievement *Achievement  `json:"achievement,omitempty"`
	Scenario    *Scenario     `json:"scenario,omitempty"`
	Saved       *SavedSession `json:"saved,omitempty"`
	Gender      Gender        `json:"gender,omitempty"`
	Rapport     int           `json:"rapport,omitempty"`
	Level       int           `json:"level,omitempty"`
	Flag        bool          `json:"flag,omitempty"`

	ServerTS time.Time `json:"server_ts,omitempty"`
}

// 事件类型。前半部分会经过 Reduce 改变会话状态，后半部分只用于通知客户端。
const (
	EventScenarioSelected       = "scenario_selected"
	EventConfigurationCancelled = "configuration_cancelled"
	EventSessionInitializing    = "session_initializing"
	EventModelMessage           = "model_message"
	EventUserMessage            = "user_message"
	EventTurnFailed             = "turn_failed"
	EventAvatarPending          = "avatar_pending"
	EventAvatarReady            = "avatar_ready"
	EventAvatarDone             = "avatar_done"
	EventHintPending            = "hint_pending"
	EventHintReady              = "hint_ready"
	EventFeedbackToggled        = "feedback_toggled"
	EventNoticeDismissed        = "notice_dismissed"
	EventSpeaking               = "speaking"
	EventSessionReset           = "session_reset"
	EventSessionLoaded          = "session_loaded"

	EventAchievementUnlocked = "achievement_unlocked"
	EventLevelUp             = "level_up"
	EventSessionSaved        = "session_saved"
	EventSessionDeleted      = "session_deleted"
	EventMoodRecorded        = "mood_recorded"
	EventTutorialCompleted   = "tutorial_completed"
)
