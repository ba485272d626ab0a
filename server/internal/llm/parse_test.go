package llm

import (
	"errors"
	"strings"
	"testing"

	"socialsim/server/internal/model"
)

func TestParseReply_Full(t *testing.T) {
	raw := `{"characterReply":"Oh, hi!","internalThought":"They seem nice","coachFeedback":"Good opener",
	"rapportDelta":5,"socialCues":["Smiled back"],"tone":"Interested"}`

	r, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Text != "Oh, hi!" || r.InternalThought != "They seem nice" {
		t.Fatalf("unexpected reply: %+v", r)
	}
	if r.Analysis.RapportDelta != 5 || r.Analysis.Tone != "Interested" || r.Analysis.Feedback != "Good opener" {
		t.Fatalf("unexpected analysis: %+v", r.Analysis)
	}
	if len(r.Analysis.SocialCues) != 1 || r.Analysis.SocialCues[0] != "Smiled back" {
		t.Fatalf("unexpected cues: %v", r.Analysis.SocialCues)
	}
}

func TestParseReply_MissingCharacterReplyFails(t *testing.T) {
	_, err := parseReply(`{"coachFeedback":"x","rapportDelta":3,"tone":"Bored"}`)
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestParseReply_NotJSON(t *testing.T) {
	if _, err := parseReply("sorry, I cannot do that"); !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
	if _, err := parseReply("   "); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseReply_CodeFenceAndDefaults(t *testing.T) {
	raw := "```json\n{\"characterReply\":\"Sure.\",\"rapportDelta\":42.4,\"tone\":\"Calm\"}\n```"
	r, err := parseReply(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Analysis.RapportDelta != 10 {
		t.Fatalf("expected delta clamped to 10, got %d", r.Analysis.RapportDelta)
	}
	if r.Analysis.SocialCues == nil || len(r.Analysis.SocialCues) != 0 {
		t.Fatalf("expected empty non-nil cues, got %#v", r.Analysis.SocialCues)
	}
}

func TestClampDelta(t *testing.T) {
	cases := map[float64]int{-25: -10, -10: -10, -2.6: -3, 0: 0, 3.4: 3, 10: 10, 11: 10}
	for in, want := range cases {
		if got := clampDelta(in); got != want {
			t.Fatalf("clampDelta(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestTranscript(t *testing.T) {
	sc := model.Scenario{PartnerName: "Alex"}
	got := transcript([]model.ChatMessage{
		{Role: model.RoleModel, Text: "Hey there"},
		{Role: model.RoleUser, Text: "Hi!"},
	}, sc)
	if got != "Alex: Hey there\nUser: Hi!" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestReplyPromptGender(t *testing.T) {
	sc := model.Scenario{PartnerName: "Taylor", Gender: model.GenderFemale}
	if p := replyPrompt(nil, sc); !strings.Contains(p, "a female character named Taylor") {
		t.Fatalf("expected gendered persona in prompt: %s", p)
	}
	sc.Gender = ""
	if p := replyPrompt(nil, sc); !strings.Contains(p, "You are roleplaying as Taylor.") {
		t.Fatalf("expected neutral persona in prompt: %s", p)
	}
}

func TestPortraitExpression(t *testing.T) {
	cases := []struct {
		s    model.Scenario
		want string
	}{
		{model.Scenario{ID: "small-talk-coffee", Title: "Coffee Shop Small Talk", Category: model.CategorySocial}, "neutral and friendly"},
		{model.Scenario{ID: "first-date-dinner", Title: "First Date: Dinner", Category: model.CategoryDating}, "slightly flirty, warm, engaging eye contact"},
		{model.Scenario{ID: "blind-date-shy", Title: "The Shy Date", Category: model.CategoryDating}, "shy, nervous smile, looking slightly down"},
		{model.Scenario{ID: "salary-negotiation", Title: "Salary Negotiation", Category: model.CategoryProfessional}, "poker face, serious, evaluating, corporate boardroom setting"},
		{model.Scenario{ID: "grocery-store", Title: "Grocery Store Aisle", Category: model.CategorySocial}, "polite but slightly awkward, casual streetwear, grocery aisle background"},
		{model.Scenario{ID: "x", Title: "Party Conflict", Category: model.CategoryProfessional}, "energetic, happy, laughing, party lighting"},
	}
	for _, c := range cases {
		if got := portraitExpression(c.s); got != c.want {
			t.Fatalf("%s: got %q, want %q", c.s.ID, got, c.want)
		}
	}
}

func TestVoices(t *testing.T) {
	if geminiVoice(model.GenderFemale) != "Kore" || geminiVoice(model.GenderMale) != "Fenrir" || geminiVoice("") != "Fenrir" {
		t.Fatalf("unexpected gemini voice mapping")
	}
}
