package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"socialsim/server/internal/config"
	"socialsim/server/internal/model"
)

// GeminiCollaborator 基于 google.golang.org/genai 的实现，按凭证缓存客户端。
type GeminiCollaborator struct {
	cfg    config.LLMProviderConfig
	logger *log.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGeminiCollaborator(cfg config.LLMProviderConfig, logger *log.Logger) *GeminiCollaborator {
	if logger == nil {
		logger = log.Default()
	}
	return &GeminiCollaborator{cfg: cfg, logger: logger, clients: make(map[string]*genai.Client)}
}

func (g *GeminiCollaborator) Name() string { return "gemini" }

func (g *GeminiCollaborator) client(ctx context.Context, cred string) (*genai.Client, error) {
	if cred == "" {
		return nil, ErrNoCredential
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[cred]; ok {
		return c, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  cred,
		Backend: genai.BackendGeminiAPI,
	}
	if g.cfg.APIURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.APIURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.clients[cred] = c
	return c, nil
}

// replySchema 与 parseReply 的字段一一对应。
func replySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"characterReply": {
				Type:        genai.TypeString,
				Description: "The verbatim response from the character to the user. Natural, conversational, and consistent with the persona.",
			},
			"internalThought": {
				Type:        genai.TypeString,
				Description: "What the character is thinking but not saying.",
			},
			"coachFeedback": {
				Type:        genai.TypeString,
				Description: "Constructive feedback for the user about tone, appropriateness, subtext and clarity.",
			},
			"rapportDelta": {
				Type:        genai.TypeInteger,
				Description: "An integer between -10 and +10 indicating how the rapport changed based on the last interaction.",
			},
			"socialCues": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Specific social cues the user noticed or missed.",
			},
			"tone": {
				Type:        genai.TypeString,
				Description: "The current emotional tone of the character (e.g. Amused, Annoyed, Interested, Bored).",
			},
		},
		Required: []string{"characterReply", "internalThought", "coachFeedback", "rapportDelta", "tone"},
	}
}

func (g *GeminiCollaborator) Reply(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (Reply, error) {
	c, err := g.client(ctx, cred)
	if err != nil {
		return Reply{}, wrap(g.Name(), CallReply, err)
	}
	conf := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   replySchema(),
		Temperature:      genai.Ptr(float32(g.cfg.Temperature)),
	}
	resp, err := c.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(replyPrompt(history, scenario)), conf)
	if err != nil {
		return Reply{}, wrap(g.Name(), CallReply, err)
	}
	r, err := parseReply(resp.Text())
	if err != nil {
		return Reply{}, wrap(g.Name(), CallReply, err)
	}
	return r, nil
}

func (g *GeminiCollaborator) Hint(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (string, error) {
	c, err := g.client(ctx, cred)
	if err != nil {
		return "", wrap(g.Name(), CallHint, err)
	}
	resp, err := c.Models.GenerateContent(ctx, g.cfg.HintModel, genai.Text(hintPrompt(history, scenario)), nil)
	if err != nil {
		return "", wrap(g.Name(), CallHint, err)
	}
	return hintText(resp.Text()), nil
}

func (g *GeminiCollaborator) Portrait(ctx context.Context, cred string, scenario model.Scenario) []byte {
	c, err := g.client(ctx, cred)
	if err != nil {
		g.logger.Printf("[LLM] ⚠️ portrait skipped: %v", err)
		return nil
	}
	conf := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "9:16"},
	}
	resp, err := c.Models.GenerateContent(ctx, g.cfg.ImageModel, genai.Text(portraitPrompt(scenario)), conf)
	if err != nil {
		g.logger.Printf("[LLM] ⚠️ portrait failed: %v", err)
		return nil
	}
	return firstInlineData(resp)
}

func (g *GeminiCollaborator) Speech(ctx context.Context, cred string, text string, gender model.Gender) []byte {
	c, err := g.client(ctx, cred)
	if err != nil {
		g.logger.Printf("[LLM] ⚠️ speech skipped: %v", err)
		return nil
	}
	conf := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: geminiVoice(gender)},
			},
		},
	}
	resp, err := c.Models.GenerateContent(ctx, g.cfg.SpeechModel, genai.Text(text), conf)
	if err != nil {
		g.logger.Printf("[LLM] ⚠️ speech failed: %v", err)
		return nil
	}
	return firstInlineData(resp)
}

// firstInlineData 返回第一个候选中第一段内联二进制数据。
func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

func hintText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackHint
	}
	return s
}
