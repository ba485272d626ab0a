package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"socialsim/server/internal/config"
	"socialsim/server/internal/model"
)

func newOpenAITestServer(t *testing.T, chatContent string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			w.Header().Set("Content-Type", "application/json")
			body, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": chatContent}, "finish_reason": "stop"}},
			})
			w.Write(body)
		case strings.HasSuffix(r.URL.Path, "/audio/speech"):
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte{0, 0, 0, 0x40})
		case strings.HasSuffix(r.URL.Path, "/images/generations"):
			w.Header().Set("Content-Type", "application/json")
			b64 := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
			w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + b64 + `"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestOpenAI(url string) *OpenAICollaborator {
	cfg := config.LLMProviderConfig{
		APIURL:      url + "/v1",
		Model:       "gpt-test",
		HintModel:   "gpt-test",
		ImageModel:  "dall-e-3",
		SpeechModel: "tts-1",
		Temperature: 0.8,
	}
	return NewOpenAICollaborator(cfg, log.New(io.Discard, "", 0))
}

func TestOpenAIReply(t *testing.T) {
	ts := newOpenAITestServer(t, `{"characterReply":"Nice to meet you","internalThought":"hm","coachFeedback":"ok","rapportDelta":-3,"socialCues":[],"tone":"Polite"}`)
	c := newTestOpenAI(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := c.Reply(ctx, "sk-test", []model.ChatMessage{{Role: model.RoleUser, Text: "hi"}}, model.Scenario{PartnerName: "Sam"})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if r.Text != "Nice to meet you" || r.Analysis.RapportDelta != -3 {
		t.Fatalf("unexpected reply: %+v", r)
	}
}

func TestOpenAIReply_MalformedIsError(t *testing.T) {
	ts := newOpenAITestServer(t, `{"coachFeedback":"no reply here"}`)
	c := newTestOpenAI(ts.URL)

	_, err := c.Reply(context.Background(), "sk-test", nil, model.Scenario{})
	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Call != CallReply || ce.Provider != "openai" {
		t.Fatalf("expected CollaboratorError for reply, got %v", err)
	}
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestOpenAIReply_BadKey(t *testing.T) {
	ts := newOpenAITestServer(t, `{}`)
	c := newTestOpenAI(ts.URL)

	if _, err := c.Reply(context.Background(), "sk-wrong", nil, model.Scenario{}); err == nil {
		t.Fatalf("expected error for bad key")
	}
	if _, err := c.Reply(context.Background(), "", nil, model.Scenario{}); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestOpenAIHintSpeechPortrait(t *testing.T) {
	ts := newOpenAITestServer(t, "1. Ask about their day")
	c := newTestOpenAI(ts.URL)
	ctx := context.Background()

	hint, err := c.Hint(ctx, "sk-test", nil, model.Scenario{})
	if err != nil || hint != "1. Ask about their day" {
		t.Fatalf("unexpected hint %q (%v)", hint, err)
	}

	pcm := c.Speech(ctx, "sk-test", "hello", model.GenderFemale)
	if len(pcm) != 4 {
		t.Fatalf("expected 4 pcm bytes, got %d", len(pcm))
	}

	img := c.Portrait(ctx, "sk-test", model.Scenario{PartnerName: "Sam"})
	if string(img) != "png-bytes" {
		t.Fatalf("unexpected image payload %q", img)
	}

	if c.Speech(ctx, "sk-wrong", "hello", model.GenderMale) != nil {
		t.Fatalf("expected nil speech on failure")
	}
	if c.Portrait(ctx, "", model.Scenario{}) != nil {
		t.Fatalf("expected nil portrait without credential")
	}
}
