package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"socialsim/server/internal/achievement"
	"socialsim/server/internal/audio"
	"socialsim/server/internal/catalog"
	"socialsim/server/internal/llm"
	"socialsim/server/internal/metrics"
	"socialsim/server/internal/model"
	"socialsim/server/internal/progress"
	"socialsim/server/internal/session"
	"socialsim/server/internal/timeline"
)

var (
	ErrEmptyCredential  = errors.New("credential is empty")
	ErrTutorialRequired = errors.New("complete the tutorial to unlock scenarios")
	ErrScenarioLocked   = errors.New("scenario requires a higher level")
	ErrInvalidPhase     = errors.New("operation not allowed in current phase")
	ErrInvalidGender    = errors.New("partner gender must be male or female")
	ErrNoActiveSession  = errors.New("no active session")
	ErrEmptyMood        = errors.New("mood emoji is empty")
)

const (
	// FailureNotice 回复失败时展示给用户的提示。
	FailureNotice = "Failed to get response. Check console or API key."
	// HintPlaceholder 提示生成中的占位文本。
	HintPlaceholder = "Thinking..."
	// HintFailure 提示生成失败时的固定文本。
	HintFailure = "Could not generate hint."
	// LobbyFeed 没有活跃会话时事件写入的 feed。
	LobbyFeed = "lobby"
)

// TurnStatus 一次发送的结果类别。
type TurnStatus string

const (
	TurnOK      TurnStatus = "ok"
	TurnIgnored TurnStatus = "ignored"
	TurnFailed  TurnStatus = "failed"
	TurnStale   TurnStatus = "stale"
)

// TurnResult 描述 SendMessage 的结果。Unlocked 包含本轮（消息奖励与好感度）解锁的全部成就。
type TurnResult struct {
	Status   TurnStatus          `json:"status"`
	Message  *model.ChatMessage  `json:"message,omitempty"`
	Rapport  int                 `json:"rapportScore"`
	Unlocked []model.Achievement `json:"unlocked,omitempty"`
	Notice   string              `json:"notice,omitempty"`
}

// ProgressStore 成长记录的持久化，由 storage.Gateway 实现。
type ProgressStore interface {
	SaveProgress(ctx context.Context, p model.UserProgress) error
	LoadProgress(ctx context.Context) model.UserProgress
}

// Publisher 接收每一条事件，用于推送给在线客户端。实现方不能阻塞。
type Publisher interface {
	Publish(evt model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// Options 构造 Orchestrator 的依赖。AI 必填，其余为 nil 时使用内存实现。
type Options struct {
	Catalog   *catalog.Catalog
	AI        llm.Collaborator
	Progress  ProgressStore
	Library   *session.Library
	Timeline  timeline.Store
	Player    *audio.Player
	Publisher Publisher

	// RequireTutorial 开启后未完成教程不能选择场景。
	RequireTutorial bool
	// Credential 启动时预置的协作方凭据，可为空。
	Credential string

	Logger *log.Logger
	Debug  bool
	Now    func() time.Time
	NewID  func(prefix string) string
}

// Snapshot 是 API 读取的一致视图。
type Snapshot struct {
	Session       *model.SessionState  `json:"session"`
	Progress      model.UserProgress   `json:"progress"`
	Saved         []model.SavedSession `json:"savedSessions"`
	HasCredential bool                 `json:"hasCredential"`
}

// Orchestrator 负责会话状态机与一轮对话的编排。
//
// 职责与契约：
//   - 单锁：会话状态与成长记录都在 mu 之下，状态只经由 Reduce 修改。
//   - append-first：每个事件先写 Timeline，再归约，再推送。
//   - 网络调用（回复/提示/肖像/语音）都在释放锁之后进行。
//   - 异步任务捕获 epoch，开始/重置/载入会话都会递增 epoch，过期结果直接丢弃。
//
// 锁顺序：mu → Player 内部锁。Player 的回调只投递信号，不获取 mu。
type Orchestrator struct {
	mu         sync.Mutex
	state      *model.SessionState
	progress   model.UserProgress
	credential string
	epoch      uint64
	hintSeq    uint64

	catalog         *catalog.Catalog
	ai              llm.Collaborator
	store           ProgressStore
	library         *session.Library
	timeline        timeline.Store
	player          *audio.Player
	publisher       Publisher
	requireTutorial bool

	logger *log.Logger
	debug  bool
	now    func() time.Time
	newID  func(prefix string) string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	speakCh   chan struct{}
	speakDone chan struct{}
	closeOnce sync.Once
}

// New 创建编排器并加载持久化的成长记录。
func New(ctx context.Context, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		catalog:         opts.Catalog,
		ai:              opts.AI,
		store:           opts.Progress,
		library:         opts.Library,
		timeline:        opts.Timeline,
		player:          opts.Player,
		publisher:       opts.Publisher,
		requireTutorial: opts.RequireTutorial,
		credential:      strings.TrimSpace(opts.Credential),
		logger:          logger,
		debug:           opts.Debug,
		now:             now,
		newID:           opts.NewID,
		speakCh:         make(chan struct{}, 1),
		speakDone:       make(chan struct{}),
	}
	if o.catalog == nil {
		o.catalog = catalog.Builtin()
	}
	if o.timeline == nil {
		o.timeline = timeline.NewInMemoryStore(0)
	}
	if o.player == nil {
		o.player = audio.NewPlayer(nil, logger)
	}
	if o.publisher == nil {
		o.publisher = nopPublisher{}
	}
	if o.newID == nil {
		o.newID = o.nanoID
	}
	if o.library == nil {
		o.library = session.NewLibrary(memoryPersister{}, logger)
	}

	if o.store != nil {
		o.progress = o.store.LoadProgress(ctx)
	} else {
		o.progress = progress.Default()
	}
	o.state = &model.SessionState{
		Phase:        model.PhaseIdle,
		Messages:     []model.ChatMessage{},
		Rapport:      progress.RapportBaseline,
		ShowFeedback: true,
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.player.OnSpeakingChange(func(bool) {
		// 在 Player 锁内被调用：只投递信号，合并重复通知。
		select {
		case o.speakCh <- struct{}{}:
		default:
		}
	})
	go o.speakingLoop()

	o.logger.Printf("[Orchestrator] ready: level=%d xp=%d achievements=%d", o.progress.Level, o.progress.CurrentXP, len(o.progress.UnlockedAchievements))
	return o
}

// SubmitCredential 设置 AI 协作方凭据。
func (o *Orchestrator) SubmitCredential(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyCredential
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.credential = key
	o.logger.Printf("[Orchestrator] credential updated")
	return nil
}

// HasCredential 是否已配置凭据。
func (o *Orchestrator) HasCredential() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.credential != ""
}

// SelectScenario 选中场景模板，进入 configuring 等待选择伙伴变体。
func (o *Orchestrator) SelectScenario(id string) (model.Scenario, error) {
	sc, err := o.catalog.Find(id)
	if err != nil {
		return model.Scenario{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != model.PhaseIdle && o.state.Phase != model.PhaseConfiguring {
		return model.Scenario{}, fmt.Errorf("%w: %s", ErrInvalidPhase, o.state.Phase)
	}
	if o.requireTutorial && !o.progress.TutorialCompleted {
		return model.Scenario{}, ErrTutorialRequired
	}
	if sc.RequiredLevel > o.progress.Level {
		return model.Scenario{}, fmt.Errorf("%w: %s needs level %d", ErrScenarioLocked, sc.ID, sc.RequiredLevel)
	}

	o.applyLocked(model.Event{Type: model.EventScenarioSelected, Scenario: &sc})
	return sc, nil
}

// CancelConfiguration 放弃已选中的场景，回到 idle。没有待选场景时什么也不做。
func (o *Orchestrator) CancelConfiguration() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Pending == nil {
		return
	}
	o.applyLocked(model.Event{Type: model.EventConfigurationCancelled})
}

// StartSimulation 用选定的伙伴变体开始会话。
// 开场白同步写入；肖像与开场语音在后台并发生成，只在会话未被替换时回填。
func (o *Orchestrator) StartSimulation(gender model.Gender) (*model.SessionState, error) {
	if !gender.Valid() {
		return nil, ErrInvalidGender
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != model.PhaseConfiguring || o.state.Pending == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhase, o.state.Phase)
	}

	sc := o.state.Pending.WithGender(gender)
	o.epoch++
	o.hintSeq++
	epoch := o.epoch
	o.player.Stop()

	o.applyLocked(model.Event{
		Type:      model.EventSessionInitializing,
		SessionID: o.newID("sess_"),
		Scenario:  &sc,
		Gender:    gender,
	})

	opening := model.ChatMessage{
		ID:        o.newID("msg_"),
		Role:      model.RoleModel,
		Text:      sc.InitialMessage,
		Timestamp: o.now(),
		Analysis:  openingAnalysis(),
	}
	o.applyLocked(model.Event{Type: model.EventModelMessage, Message: &opening, Rapport: progress.RapportBaseline})
	o.logger.Printf("[Orchestrator] 🎬 session %s started: scenario=%s gender=%s", o.state.ID, sc.ID, gender)

	if cred := o.credential; cred != "" {
		o.applyLocked(model.Event{Type: model.EventAvatarPending})
		o.spawn(func(ctx context.Context) { o.generatePortrait(ctx, epoch, cred, sc) })
		o.spawn(func(ctx context.Context) { o.speak(ctx, epoch, cred, sc.InitialMessage, gender) })
	}

	return o.state.Clone(), nil
}

func openingAnalysis() *model.Analysis {
	return &model.Analysis{
		Tone:         "Neutral",
		RapportDelta: 0,
		Feedback:     "Start the conversation naturally.",
		SocialCues:   []string{},
	}
}

// SendMessage 执行一轮对话。
//
// 前置条件不满足（空白文本、无会话、无凭据、正在等待回复）时返回 TurnIgnored，状态不变。
// 消息奖励在调用协作方之前结算，回复失败也不会回滚。
func (o *Orchestrator) SendMessage(ctx context.Context, text string) (TurnResult, error) {
	o.mu.Lock()
	if strings.TrimSpace(text) == "" || o.state.Scenario == nil || o.credential == "" || o.state.Phase != model.PhaseActive {
		o.mu.Unlock()
		metrics.RecordTurn(string(TurnIgnored))
		return TurnResult{Status: TurnIgnored}, nil
	}

	epoch := o.epoch
	// 发送会清掉提示，之前未返回的提示结果也随之作废。
	o.hintSeq++
	userMsg := model.ChatMessage{
		ID:        o.newID("msg_"),
		Role:      model.RoleUser,
		Text:      text,
		Timestamp: o.now(),
	}
	o.applyLocked(model.Event{Type: model.EventUserMessage, Message: &userMsg})

	next := progress.ApplyXP(progress.MarkMessageSent(o.progress), progress.MessageXP)
	next, unlocked := achievement.Award(next, achievement.TriggerMessage)
	o.setProgressLocked(ctx, next, unlocked)

	history := model.CloneMessages(o.state.Messages)
	scenario := *o.state.Scenario
	cred := o.credential
	o.mu.Unlock()

	reply, err := o.ai.Reply(ctx, cred, history, scenario)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.epoch != epoch {
		o.logger.Printf("[Orchestrator] reply for a replaced session dropped")
		metrics.RecordTurn(string(TurnStale))
		return TurnResult{Status: TurnStale, Unlocked: unlocked}, nil
	}

	if err != nil {
		o.logger.Printf("[Orchestrator] ❌ reply failed: %v", err)
		o.applyLocked(model.Event{Type: model.EventTurnFailed, Text: FailureNotice})
		metrics.RecordTurn(string(TurnFailed))
		return TurnResult{Status: TurnFailed, Rapport: o.state.Rapport, Unlocked: unlocked, Notice: FailureNotice},
			fmt.Errorf("get reply: %w", err)
	}

	analysis := reply.Analysis
	analysis.RapportDelta = clampDelta(analysis.RapportDelta)
	newRapport := clampRapport(o.state.Rapport + analysis.RapportDelta)
	if analysis.SocialCues == nil {
		analysis.SocialCues = []string{}
	}
	botMsg := model.ChatMessage{
		ID:              o.newID("msg_"),
		Role:            model.RoleModel,
		Text:            reply.Text,
		Timestamp:       o.now(),
		Analysis:        &analysis,
		InternalThought: reply.InternalThought,
	}
	o.applyLocked(model.Event{Type: model.EventModelMessage, Message: &botMsg, Rapport: newRapport})

	next = progress.RecordRapport(o.progress, newRapport)
	next, more := achievement.Award(next, achievement.TriggerRapport)
	o.setProgressLocked(ctx, next, more)
	unlocked = append(unlocked, more...)

	o.spawn(func(ctx context.Context) { o.speak(ctx, epoch, cred, reply.Text, scenario.Gender) })

	metrics.RecordTurn(string(TurnOK))
	out := model.CloneMessages([]model.ChatMessage{botMsg})[0]
	return TurnResult{Status: TurnOK, Message: &out, Rapport: newRapport, Unlocked: unlocked}, nil
}

// RequestHint 异步请求下一句建议。没有会话或凭据时返回 false。
// 只有最新一次请求、且会话未被替换时才会回填。
func (o *Orchestrator) RequestHint() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Scenario == nil || o.credential == "" {
		return false
	}

	o.hintSeq++
	seq, epoch := o.hintSeq, o.epoch
	history := model.CloneMessages(o.state.Messages)
	scenario := *o.state.Scenario
	cred := o.credential
	o.applyLocked(model.Event{Type: model.EventHintPending, Text: HintPlaceholder})

	o.spawn(func(ctx context.Context) {
		text, err := o.ai.Hint(ctx, cred, history, scenario)
		if err != nil {
			o.logger.Printf("[Orchestrator] hint failed: %v", err)
			text = HintFailure
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.hintSeq != seq || o.epoch != epoch {
			return
		}
		o.applyLocked(model.Event{Type: model.EventHintReady, Text: text})
	})
	return true
}

// ToggleFeedback 切换分析面板，返回新的可见状态。
func (o *Orchestrator) ToggleFeedback() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyLocked(model.Event{Type: model.EventFeedbackToggled, Flag: !o.state.ShowFeedback})
	return o.state.ShowFeedback
}

// DismissNotice 关闭失败提示。
func (o *Orchestrator) DismissNotice() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Notice == "" {
		return
	}
	o.applyLocked(model.Event{Type: model.EventNoticeDismissed})
}

// Reset 结束当前会话回到 idle。消息数超过阈值时发放完成奖励，返回是否算作完成。
func (o *Orchestrator) Reset(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	completed := len(o.state.Messages) > progress.SessionCompletionThreshold
	if completed {
		next := progress.ApplyXP(progress.MarkSessionCompleted(o.progress), progress.SessionBonusXP)
		next, unlocked := achievement.Award(next, achievement.TriggerSession)
		o.setProgressLocked(ctx, next, unlocked)
	}

	o.epoch++
	o.hintSeq++
	o.player.Stop()
	o.applyLocked(model.Event{Type: model.EventSessionReset, Flag: completed})
	o.logger.Printf("[Orchestrator] session reset (completed=%v, sessions=%d)", completed, o.progress.SessionsCompleted)
	return completed
}

// SaveCurrentSession 把当前会话存为快照并插到存档列表最前。
// 持久化失败只记录日志，内存中的存档仍然可用。
func (o *Orchestrator) SaveCurrentSession(ctx context.Context) (model.SavedSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Scenario == nil {
		return model.SavedSession{}, ErrNoActiveSession
	}
	saved := session.Snapshot(o.newID("save_"), o.now(), *o.state.Scenario, o.state.Messages, o.state.Rapport)
	if err := o.library.Save(ctx, saved); err != nil {
		o.logger.Printf("[Orchestrator] ⚠️ save session: %v", err)
	}
	o.applyLocked(model.Event{Type: model.EventSessionSaved, Saved: &saved})
	return saved, nil
}

// DeleteSession 删除存档。
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.library.Delete(ctx, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return err
		}
		o.logger.Printf("[Orchestrator] ⚠️ delete session: %v", err)
	}
	o.applyLocked(model.Event{Type: model.EventSessionDeleted, Text: id})
	return nil
}

// LoadSession 用存档整体替换当前会话并直接进入 active，正在播放的语音会被停止。
func (o *Orchestrator) LoadSession(ctx context.Context, id string) (*model.SessionState, error) {
	saved, err := o.library.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.hintSeq++
	o.player.Stop()
	o.applyLocked(model.Event{Type: model.EventSessionLoaded, SessionID: o.newID("sess_"), Saved: &saved})
	o.logger.Printf("[Orchestrator] session %s loaded from save %s", o.state.ID, saved.ID)
	return o.state.Clone(), nil
}

// CompleteTutorial 标记教程完成并检查 tutorial 类成就。重复调用不会重复发奖。
func (o *Orchestrator) CompleteTutorial(ctx context.Context) []model.Achievement {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := progress.MarkTutorialCompleted(o.progress)
	next, unlocked := achievement.Award(next, achievement.TriggerTutorial)
	o.setProgressLocked(ctx, next, unlocked)
	o.applyLocked(model.Event{Type: model.EventTutorialCompleted})
	return unlocked
}

// RecordMood 记录一次情绪打卡。
func (o *Orchestrator) RecordMood(ctx context.Context, emoji, tag string) (model.MoodEntry, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return model.MoodEntry{}, ErrEmptyMood
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	entry := model.MoodEntry{Timestamp: o.now(), Emoji: emoji, Tag: strings.TrimSpace(tag)}
	o.setProgressLocked(ctx, progress.RecordMood(o.progress, entry), nil)
	o.applyLocked(model.Event{Type: model.EventMoodRecorded, Text: emoji})
	return entry, nil
}

// Scenarios 返回场景目录及当前等级下的锁定状态。
func (o *Orchestrator) Scenarios() []catalog.Entry {
	o.mu.Lock()
	level := o.progress.Level
	o.mu.Unlock()
	return o.catalog.Entries(level)
}

// Achievements 返回成就目录及解锁状态。
func (o *Orchestrator) Achievements() []achievement.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return achievement.Statuses(o.progress)
}

// State 返回会话状态的深拷贝。
func (o *Orchestrator) State() *model.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Progress 返回成长记录的深拷贝。
func (o *Orchestrator) Progress() model.UserProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress.Clone()
}

// Snapshot 返回会话、成长记录与存档列表的一致视图。
func (o *Orchestrator) Snapshot(ctx context.Context) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Session:       o.state.Clone(),
		Progress:      o.progress.Clone(),
		Saved:         o.library.List(ctx),
		HasCredential: o.credential != "",
	}
}

// Events 返回 feed 中 seq 大于 after 的事件；sessionID 为空时取当前会话。
func (o *Orchestrator) Events(ctx context.Context, sessionID string, after int64) ([]model.Event, error) {
	if sessionID == "" {
		o.mu.Lock()
		sessionID = feedKey(o.state.ID)
		o.mu.Unlock()
	}
	return o.timeline.ListAfter(ctx, sessionID, after)
}

// Wait 等待所有后台任务与语音播放结束，并同步最终的说话状态。
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	o.player.Wait()
	o.wg.Wait()
	o.syncSpeaking()
}

// Close 取消后台任务并关闭播放器。
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.cancel()
		o.wg.Wait()
		<-o.speakDone
		o.player.Close()
		o.logger.Printf("[Orchestrator] closed")
	})
}

// applyLocked 补齐事件元数据 → 写 Timeline → 归约 → 推送。调用方需持有 mu。
func (o *Orchestrator) applyLocked(evt model.Event) model.Event {
	now := o.now()
	if evt.SessionID == "" {
		evt.SessionID = o.state.ID
	}
	evt.SessionID = feedKey(evt.SessionID)
	evt.ServerTS = now

	// append-first：先写事实，再归约快照。
	seq, err := o.timeline.Append(context.Background(), evt.SessionID, &evt)
	if err != nil {
		o.logger.Printf("[Orchestrator] ⚠️ timeline append %s: %v", evt.Type, err)
	} else {
		evt.Seq = seq
	}

	Reduce(o.state, evt, now)
	if o.debug {
		o.logger.Printf("[Orchestrator] event %s seq=%d session=%s phase=%s", evt.Type, evt.Seq, evt.SessionID, o.state.Phase)
	}
	o.publisher.Publish(evt)
	return evt
}

// setProgressLocked 替换成长记录、推送成就与升级事件并持久化。
func (o *Orchestrator) setProgressLocked(ctx context.Context, next model.UserProgress, unlocked []model.Achievement) {
	prevLevel := o.progress.Level
	o.progress = next

	for i := range unlocked {
		a := unlocked[i]
		metrics.RecordAchievement(a.ID)
		o.logger.Printf("[Orchestrator] 🏆 achievement unlocked: %s (+%d XP)", a.ID, a.XPReward)
		o.applyLocked(model.Event{Type: model.EventAchievementUnlocked, Achievement: &a})
	}
	if next.Level > prevLevel {
		o.logger.Printf("[Orchestrator] ⬆️ level up: %d -> %d", prevLevel, next.Level)
		o.applyLocked(model.Event{Type: model.EventLevelUp, Level: next.Level})
	}

	if o.store == nil {
		return
	}
	if err := o.store.SaveProgress(ctx, next.Clone()); err != nil {
		o.logger.Printf("[Orchestrator] ⚠️ persist progress: %v", err)
	}
}

func (o *Orchestrator) generatePortrait(ctx context.Context, epoch uint64, cred string, sc model.Scenario) {
	img := o.ai.Portrait(ctx, cred, sc)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return
	}
	if len(img) == 0 {
		o.applyLocked(model.Event{Type: model.EventAvatarDone})
		return
	}
	o.applyLocked(model.Event{Type: model.EventAvatarReady, Text: dataURL(img)})
}

// speak 合成语音并交给播放器；失败或会话已被替换时静默放弃。
func (o *Orchestrator) speak(ctx context.Context, epoch uint64, cred, text string, gender model.Gender) {
	pcm := o.ai.Speech(ctx, cred, text, gender)
	if len(pcm) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return
	}
	o.player.Play(pcm)
}

func (o *Orchestrator) spawn(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

func (o *Orchestrator) speakingLoop() {
	defer close(o.speakDone)
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.speakCh:
			o.syncSpeaking()
		}
	}
}

// syncSpeaking 把播放器的说话状态同步进会话状态。
func (o *Orchestrator) syncSpeaking() {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.player.Speaking()
	metrics.SetSpeaking(v)
	if o.state.Speaking == v {
		return
	}
	o.applyLocked(model.Event{Type: model.EventSpeaking, Flag: v})
}

func (o *Orchestrator) nanoID(prefix string) string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("%s%d", prefix, o.now().UnixNano())
	}
	return prefix + id
}

func feedKey(sessionID string) string {
	if sessionID == "" {
		return LobbyFeed
	}
	return sessionID
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

// memoryPersister 未配置存储时的存档持久层：什么也不保存。
type memoryPersister struct{}

func (memoryPersister) SaveSessions(context.Context, []model.SavedSession) error { return nil }
func (memoryPersister) LoadSessions(context.Context) []model.SavedSession {
	return []model.SavedSession{}
}
