package llm

import (
	"fmt"
	"strings"

	"socialsim/server/internal/model"
)

// FallbackHint 提供商返回空文本时使用的提示。
const FallbackHint = "Try asking a follow-up question related to what they just said."

// transcript 把历史消息拼成 "User: ..." / "<伙伴名>: ..." 的纯文本。
func transcript(history []model.ChatMessage, scenario model.Scenario) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := scenario.PartnerName
		if m.Role == model.RoleUser {
			speaker = "User"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

func replyPrompt(history []model.ChatMessage, scenario model.Scenario) string {
	persona := fmt.Sprintf("You are roleplaying as %s.", scenario.PartnerName)
	if scenario.Gender != "" {
		persona = fmt.Sprintf("You are roleplaying as a %s character named %s.", scenario.Gender, scenario.PartnerName)
	}
	return fmt.Sprintf(`System Context:
You are an advanced social dynamics simulator designed to help users practice social skills, small talk, and dating.

Your Configuration:
- %s
- Scenario Description: %s
- Personality & Goals: %s

Task:
1. Analyze: Read the User's latest message. Interpret their tone, subtext, and social appropriateness.
2. Roleplay: Generate the next response as %s.
   - Stay strictly in character.
   - If the user is awkward but trying, be realistic (maybe slightly confused but polite).
   - If the user is rude or creepy, react negatively.
   - Keep responses natural length (don't monologue unless the persona would).
3. Coach: Provide separate meta-analysis for the user.
   - Did they miss a cue?
   - Was the tone appropriate?
   - How did this make the character feel?

Current Conversation History:
%s

Respond strictly in JSON format according to the schema.`,
		persona, scenario.Description, scenario.SystemPrompt, scenario.PartnerName, transcript(history, scenario))
}

func hintPrompt(history []model.ChatMessage, scenario model.Scenario) string {
	gender := string(scenario.Gender)
	if gender == "" {
		gender = "Unspecified"
	}
	return fmt.Sprintf(`Context: %s
Roleplay Character: %s (%s)
Conversation So Far:
%s

Task: Provide 3 short, distinct, and socially intelligent options for what the user could say next.
Focus on building rapport, de-escalating tension, or advancing the conversation naturally.
Format as a simple numbered list.`,
		scenario.SystemPrompt, scenario.PartnerName, gender, transcript(history, scenario))
}

// portraitExpression 按分类、id、标题依次覆盖，后面的规则优先。
func portraitExpression(s model.Scenario) string {
	expression := "neutral and friendly"
	if s.Category == model.CategoryDating {
		expression = "slightly flirty, warm, engaging eye contact"
	}
	if s.ID == "blind-date-shy" {
		expression = "shy, nervous smile, looking slightly down"
	}
	if s.ID == "advanced-flirting-bar" {
		expression = "confident, smirking, playful, alluring"
	}
	if s.Category == model.CategoryProfessional {
		expression = "professional, focused, confident, business attire"
	}
	if s.ID == "salary-negotiation" {
		expression = "poker face, serious, evaluating, corporate boardroom setting"
	}
	if s.ID == "networking-event" {
		expression = "polite corporate smile, sharp business suit"
	}
	switch {
	case strings.Contains(s.Title, "Grocery"):
		expression = "polite but slightly awkward, casual streetwear, grocery aisle background"
	case strings.Contains(s.Title, "Gym"):
		expression = "slightly sweaty, focused, athletic wear, gym background"
	case strings.Contains(s.Title, "Party"):
		expression = "energetic, happy, laughing, party lighting"
	case strings.Contains(s.Title, "Conflict"):
		expression = "slightly annoyed, stern, serious expression"
	}
	return expression
}

func portraitPrompt(s model.Scenario) string {
	gender := string(s.Gender)
	if gender == "" {
		gender = "neutral gender"
	}
	return fmt.Sprintf(`A high-quality, cinematic, photorealistic portrait of %s.
Demographics: %s, %s.
Expression: %s.
Lighting: Cinematic, professional, appropriate for the scene (%s).
Style: Realistic photography, sharp focus, 8k resolution, highly detailed.
Aspect Ratio: Portrait (9:16).
NO text, NO sprites, NO interface elements. Just the character.`,
		s.PartnerName, gender, s.Description, portraitExpression(s), s.Title)
}

// geminiVoice 女性角色用 Kore，其他用 Fenrir。
func geminiVoice(g model.Gender) string {
	if g == model.GenderFemale {
		return "Kore"
	}
	return "Fenrir"
}
