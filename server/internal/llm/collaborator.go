// Package llm 封装 AI 协作方：生成角色回复与教练分析、提示、角色肖像和语音。
package llm

import (
	"context"
	"errors"
	"fmt"

	"socialsim/server/internal/model"
)

// Call 协作方调用类型，用于错误与指标标签。
type Call string

const (
	CallReply    Call = "reply"
	CallHint     Call = "hint"
	CallPortrait Call = "portrait"
	CallSpeech   Call = "speech"
)

var (
	// ErrNoCredential 调用时没有提供凭证。
	ErrNoCredential = errors.New("missing credential")
	// ErrMalformedReply 回复缺少角色台词或不是合法 JSON。
	ErrMalformedReply = errors.New("malformed reply")
	// ErrEmptyResponse 提供商返回了空内容。
	ErrEmptyResponse = errors.New("empty response")
)

// Reply 是一次成功的角色回复。
type Reply struct {
	Text            string
	InternalThought string
	Analysis        model.Analysis
}

// Collaborator 是外部 AI 服务的契约。
//
// Reply 与 Hint 失败时返回错误；Portrait 与 Speech 失败时返回 nil，从不报错，
// 因为它们只是可选的增强效果。
type Collaborator interface {
	Name() string
	Reply(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (Reply, error)
	Hint(ctx context.Context, cred string, history []model.ChatMessage, scenario model.Scenario) (string, error)
	// Portrait 返回图片字节（png/jpeg）。
	Portrait(ctx context.Context, cred string, scenario model.Scenario) []byte
	// Speech 返回 24kHz 单声道 s16le PCM。
	Speech(ctx context.Context, cred string, text string, gender model.Gender) []byte
}

// CollaboratorError 带调用类型与提供商信息的错误。
type CollaboratorError struct {
	Provider string
	Call     Call
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Call, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func wrap(provider string, call Call, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Provider: provider, Call: call, Err: err}
}
