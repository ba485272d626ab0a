package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"socialsim/server/internal/catalog"
	"socialsim/server/internal/gateway"
	"socialsim/server/internal/metrics"
	"socialsim/server/internal/model"
	"socialsim/server/internal/orchestrator"
	"socialsim/server/internal/session"
)

type Server struct {
	orchestrator *orchestrator.Orchestrator
	hub          *gateway.Hub
	logger       *log.Logger

	// allowedOrigins 允许跨域访问的前端来源
	allowedOrigins map[string]bool
}

// NewServer 创建 HTTP 服务，并把自己注册为 hub 的上行消息处理器。hub 可为 nil（不提供 /api/stream）。
func NewServer(orch *orchestrator.Orchestrator, hub *gateway.Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		orchestrator: orch,
		hub:          hub,
		logger:       logger,
		allowedOrigins: map[string]bool{
			"http://localhost:5173": true,
			"http://127.0.0.1:5173": true,
		},
	}
	if hub != nil {
		hub.SetEventHandler(s.HandleStreamMessage)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	// Gin 统一承载中间件与路由，便于扩展日志/鉴权/限流等能力。
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), s.corsMiddleware())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api")
	api.POST("/credential", s.handleCredential)
	api.GET("/scenarios", s.handleScenarios)
	api.GET("/achievements", s.handleAchievements)
	api.GET("/state", s.handleState)
	api.POST("/scenario/select", s.handleSelectScenario)
	api.POST("/scenario/cancel", s.handleCancelConfiguration)
	api.POST("/simulation/start", s.handleStartSimulation)
	api.POST("/messages", s.handleSendMessage)
	api.POST("/hint", s.handleHint)
	api.POST("/feedback/toggle", s.handleToggleFeedback)
	api.POST("/notice/dismiss", s.handleDismissNotice)
	api.POST("/session/reset", s.handleReset)
	api.POST("/sessions", s.handleSaveSession)
	api.POST("/sessions/:id/load", s.handleLoadSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/tutorial/complete", s.handleCompleteTutorial)
	api.POST("/mood", s.handleMood)
	api.GET("/events", s.handleEvents)
	if s.hub != nil {
		api.GET("/stream", gin.WrapH(s.hub))
	}
	return engine
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// handleCredential 接收用户提交的协作方凭据。
func (s *Server) handleCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := s.orchestrator.SubmitCredential(req.APIKey); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Scenarios())
}

func (s *Server) handleAchievements(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Achievements())
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Snapshot(c.Request.Context()))
}

type selectScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

func (s *Server) handleSelectScenario(c *gin.Context) {
	var req selectScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ScenarioID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario_id required"})
		return
	}
	sc, err := s.orchestrator.SelectScenario(req.ScenarioID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) handleCancelConfiguration(c *gin.Context) {
	s.orchestrator.CancelConfiguration()
	c.JSON(http.StatusOK, s.orchestrator.State())
}

type startSimulationRequest struct {
	Gender model.Gender `json:"gender"`
}

func (s *Server) handleStartSimulation(c *gin.Context) {
	var req startSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	state, err := s.orchestrator.StartSimulation(req.Gender)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleSendMessage 发送一条用户消息并同步等待伙伴回复。
// 前置条件不满足时返回 200 ignored；回复失败返回 502 并带上提示文本。
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.orchestrator.SendMessage(c.Request.Context(), req.Text)
	if res.Status == orchestrator.TurnFailed {
		s.logger.Printf("[API] ❌ reply failed: %v", err)
		c.JSON(http.StatusBadGateway, res)
		return
	}
	if res.Status == orchestrator.TurnIgnored {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHint(c *gin.Context) {
	if !s.orchestrator.RequestHint() {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
}

func (s *Server) handleToggleFeedback(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"showFeedback": s.orchestrator.ToggleFeedback()})
}

func (s *Server) handleDismissNotice(c *gin.Context) {
	s.orchestrator.DismissNotice()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReset(c *gin.Context) {
	completed := s.orchestrator.Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"completed": completed})
}

func (s *Server) handleSaveSession(c *gin.Context) {
	saved, err := s.orchestrator.SaveCurrentSession(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleLoadSession(c *gin.Context) {
	state, err := s.orchestrator.LoadSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.orchestrator.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleCompleteTutorial(c *gin.Context) {
	unlocked := s.orchestrator.CompleteTutorial(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"progress": s.orchestrator.Progress(),
		"unlocked": unlocked,
	})
}

type moodRequest struct {
	Emoji string `json:"emoji"`
	Tag   string `json:"tag"`
}

func (s *Server) handleMood(c *gin.Context) {
	var req moodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, err := s.orchestrator.RecordMood(c.Request.Context(), req.Emoji, req.Tag)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleEvents 轮询事件流：session 为空时读当前会话，after 为上次收到的 seq。
func (s *Server) handleEvents(c *gin.Context) {
	var after int64
	if raw := c.Query("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
			return
		}
		after = v
	}
	events, err := s.orchestrator.Events(c.Request.Context(), c.Query("session"), after)
	if err != nil {
		s.logger.Printf("[API] list events failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list events failed"})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// HandleStreamMessage 处理来自 websocket 的上行消息，语义与对应的 HTTP 接口一致。
func (s *Server) HandleStreamMessage(ctx context.Context, msg *gateway.ClientMessage) error {
	s.logger.Printf("[API] stream event: type=%s id=%s", msg.Type, msg.EventID)

	switch msg.Type {
	case gateway.EventTypeSendMessage:
		res, err := s.orchestrator.SendMessage(ctx, msg.Text)
		if res.Status == orchestrator.TurnFailed {
			return err
		}
		return nil

	case gateway.EventTypeRequestHint:
		s.orchestrator.RequestHint()
		return nil

	case gateway.EventTypeToggleFeedback:
		s.orchestrator.ToggleFeedback()
		return nil

	case gateway.EventTypeDismissNotice:
		s.orchestrator.DismissNotice()
		return nil

	case gateway.EventTypeReset:
		s.orchestrator.Reset(ctx)
		return nil

	default:
		s.logger.Printf("[API] unhandled stream event type: %s", msg.Type)
		return nil
	}
}

// writeError 把编排器的错误映射为 HTTP 状态码。
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrScenarioNotFound), errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrTutorialRequired), errors.Is(err, orchestrator.ErrScenarioLocked):
		status = http.StatusForbidden
	case errors.Is(err, orchestrator.ErrInvalidPhase), errors.Is(err, orchestrator.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrInvalidGender),
		errors.Is(err, orchestrator.ErrEmptyCredential),
		errors.Is(err, orchestrator.ErrEmptyMood):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		// 详细错误只进服务端日志
		s.logger.Printf("[API] ❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		// 开发期：允许本地 Vite；线上应改为白名单或同源。
		if s.allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
