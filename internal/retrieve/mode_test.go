package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/model"
)

func TestDetectMode_ExecutionKeyword(t *testing.T) {
	profiles := model.CanonicalModes()
	p, conf := DetectMode("fix the build error", profiles)
	assert.Equal(t, model.ModeExecution, p.Name)
	assert.Greater(t, conf, 0.3)
}

func TestDetectMode_PlanningKeyword(t *testing.T) {
	profiles := model.CanonicalModes()
	p, _ := DetectMode("what is our roadmap strategy for Q3", profiles)
	assert.Equal(t, model.ModePlanning, p.Name)
}

func TestDetectMode_BrainstormingKeyword(t *testing.T) {
	profiles := model.CanonicalModes()
	p, _ := DetectMode("let's brainstorm some wild ideas", profiles)
	assert.Equal(t, model.ModeBrainstorming, p.Name)
}

func TestDetectMode_NoMatchFallsBackToExecution(t *testing.T) {
	profiles := model.CanonicalModes()
	p, conf := DetectMode("the sky is blue today", profiles)
	// No catalogue pattern matches: the execution "current(ly)" pattern does
	// not cover "today" (only IsCurrentQuery's currentRe does).
	assert.Equal(t, model.ModeExecution, p.Name)
	require.Equal(t, 0.3, conf)
}

func TestDetectMode_ExecutionWinsTies(t *testing.T) {
	profiles := model.CanonicalModes()
	// "plan to fix" fires one planning pattern ("plan") and one execution
	// pattern ("fix"): tied 1-1, execution must win.
	p, _ := DetectMode("plan to fix this", profiles)
	assert.Equal(t, model.ModeExecution, p.Name)
}

func TestIsCurrentQuery(t *testing.T) {
	assert.True(t, IsCurrentQuery("what is the current status"))
	assert.False(t, IsCurrentQuery("what was the status last year"))
}
