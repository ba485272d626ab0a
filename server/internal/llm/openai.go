package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"socialsim/server/internal/config"
	"socialsim/server/internal/model"
)

const replyJSONInstruction = `Return a single JSON object with exactly these fields:
"characterReply" (string), "internalThought" (string), "coachFeedback" (string),
"rapportDelta" (integer between -10 and 10), "socialCues" (array of strings), "tone" (string).`

// OpenAICollaborator 基于 go-openai 的实现，兼容任意 OpenAI 协议的服务（api_url）。
type OpenAICollaborator struct {
	cfg    config.LLMProviderConfig
	logger *log.Logger
}

func NewOpenAICollaborator(cfg config.LLMProviderConfig, logger *log.Logger) *OpenAICollaborator {
	if logger == nil {
		logger = log.Default()
	}
	return &OpenAICollaborator{cfg: cfg, logger: logger}
}

func (o *OpenAICollaborator) Name() string { return "openai" }

func (o *OpenAICollaborator) client(cred string) (*openai.Client, error) {
	if cred == "" {
		return nil, ErrNoCredential
	}
	cc := openai.DefaultConfig(cred)
	if o.cfg.APIURL != "" {
		cc.BaseURL = strings.TrimRight(o.cfg.APIURL, "/")
	}
	return openai.NewClientWithConfig(cc), nil
}

func (o *OpenAICollaborator) Reply(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (Reply, error) {
	c, err := o.client(cred)
	if err != nil {
		return Reply{}, wrap(o.Name(), CallReply, err)
	}
	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Temperature: float32(o.cfg.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: replyJSONInstruction},
			{Role: openai.ChatMessageRoleUser, Content: replyPrompt(history, scenario)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	content, err := o.complete(ctx, c, req)
	if err != nil {
		return Reply{}, wrap(o.Name(), CallReply, err)
	}
	r, err := parseReply(content)
	if err != nil {
		return Reply{}, wrap(o.Name(), CallReply, err)
	}
	return r, nil
}

func (o *OpenAICollaborator) Hint(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (string, error) {
	c, err := o.client(cred)
	if err != nil {
		return "", wrap(o.Name(), CallHint, err)
	}
	req := openai.ChatCompletionRequest{
		Model: o.cfg.HintModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: hintPrompt(history, scenario)},
		},
	}
	content, err := o.complete(ctx, c, req)
	if err != nil && !errors.Is(err, ErrEmptyResponse) {
		return "", wrap(o.Name(), CallHint, err)
	}
	return hintText(content), nil
}

func (o *OpenAICollaborator) complete(ctx context.Context, c *openai.Client, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (o *OpenAICollaborator) Portrait(ctx context.Context, cred string, scenario model.Scenario) []byte {
	c, err := o.client(cred)
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ portrait skipped: %v", err)
		return nil
	}
	resp, err := c.CreateImage(ctx, openai.ImageRequest{
		Prompt:         portraitPrompt(scenario),
		Model:          o.cfg.ImageModel,
		Size:           openai.CreateImageSize1024x1792,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ portrait failed: %v", err)
		return nil
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		o.logger.Printf("[LLM] ⚠️ portrait returned no image")
		return nil
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ portrait payload invalid: %v", err)
		return nil
	}
	return img
}

// openaiVoice 女性角色用 nova，其他用 onyx。
func openaiVoice(g model.Gender) openai.SpeechVoice {
	if g == model.GenderFemale {
		return openai.VoiceNova
	}
	return openai.VoiceOnyx
}

func (o *OpenAICollaborator) Speech(ctx context.Context, cred string, text string, gender model.Gender) []byte {
	c, err := o.client(cred)
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ speech skipped: %v", err)
		return nil
	}
	raw, err := c.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.cfg.SpeechModel),
		Input:          text,
		Voice:          openaiVoice(gender),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ speech failed: %v", err)
		return nil
	}
	defer raw.Close()
	pcm, err := io.ReadAll(raw)
	if err != nil {
		o.logger.Printf("[LLM] ⚠️ speech read failed: %v", err)
		return nil
	}
	if len(pcm) == 0 {
		return nil
	}
	return pcm
}

// describe 用于日志，不输出凭证。
func (o *OpenAICollaborator) describe() string {
	return fmt.Sprintf("openai(model=%s, url=%s)", o.cfg.Model, o.cfg.APIURL)
}
