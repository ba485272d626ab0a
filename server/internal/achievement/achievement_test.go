package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsim/server/internal/model"
	"socialsim/server/internal/progress"
)

func ids(list []model.Achievement) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestEvaluate_FirstMessage(t *testing.T) {
	p := progress.MarkMessageSent(progress.Default())
	got := Evaluate(p, TriggerMessage)
	assert.Equal(t, []string{IDFirstStep}, ids(got))
}

func TestEvaluate_TutorialOnlyOnTutorialTrigger(t *testing.T) {
	p := progress.Default()
	assert.Empty(t, Evaluate(p, TriggerMessage))
	assert.Equal(t, []string{IDGraduate}, ids(Evaluate(p, TriggerTutorial)))
}

func TestEvaluate_RapportThreshold(t *testing.T) {
	p := progress.RecordRapport(progress.Default(), 89)
	assert.Empty(t, Evaluate(p, TriggerRapport))

	p = progress.RecordRapport(p, 90)
	assert.Equal(t, []string{IDSmoothOperator}, ids(Evaluate(p, TriggerRapport)))
}

func TestEvaluate_SkipsAlreadyUnlocked(t *testing.T) {
	p := progress.MarkMessageSent(progress.Default())
	p.UnlockedAchievements = []string{IDFirstStep}
	assert.Empty(t, Evaluate(p, TriggerMessage))
}

func TestAward_IsIdempotent(t *testing.T) {
	p := progress.MarkMessageSent(progress.Default())

	first, unlocked := Award(p, TriggerMessage)
	require.Len(t, unlocked, 1)
	assert.Equal(t, 50, first.CurrentXP)

	second, unlocked := Award(first, TriggerMessage)
	assert.Empty(t, unlocked)
	assert.Equal(t, first.CurrentXP, second.CurrentXP)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, []string{IDFirstStep}, second.UnlockedAchievements)
}

func TestAward_SimultaneousUnlocksSumRewards(t *testing.T) {
	p := progress.Default()
	p.TotalMessagesSent = 20
	p.HighestRapport = 95

	next, unlocked := Award(p, TriggerRapport)
	assert.ElementsMatch(t, []string{IDFirstStep, IDSmoothOperator, IDConversationalist}, ids(unlocked))
	assert.Equal(t, 400, TotalReward(unlocked))

	// 400 XP：L1 需 100，L2 需 200，剩余 100 停在 L3。
	assert.Equal(t, 3, next.Level)
	assert.Equal(t, 100, next.CurrentXP)
	assert.Len(t, next.UnlockedAchievements, 3)
}

func TestCatalogIsCopy(t *testing.T) {
	c := Catalog()
	c[0].Title = "mutated"
	a, ok := Find(IDGraduate)
	require.True(t, ok)
	assert.Equal(t, "Academy Graduate", a.Title)
}

func TestStatuses(t *testing.T) {
	p := progress.Default()
	p.UnlockedAchievements = []string{IDFirstStep}

	list := Statuses(p)
	require.Len(t, list, len(Catalog()))
	for _, s := range list {
		assert.Equal(t, s.ID == IDFirstStep, s.Unlocked, s.ID)
	}
}
