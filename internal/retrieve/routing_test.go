package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mnemosyne/internal/model"
)

func TestRouteQuery_Probabilistic(t *testing.T) {
	mode := model.CanonicalModes()[model.ModePlanning]
	r := RouteQuery("what is P(success | deploy)", mode, nil, nil)
	assert.Contains(t, r.Tiers, TierVector)
	assert.Contains(t, r.Tiers, TierGraph)
	assert.Contains(t, r.Tiers, TierBayesian)
}

func TestRouteQuery_MultiHopCueSkipsPPRInExecutionMode(t *testing.T) {
	mode := model.CanonicalModes()[model.ModeExecution]
	r := RouteQuery("what led to the outage", mode, nil, nil)
	assert.NotContains(t, r.Tiers, TierMultiHopPPR)
}

func TestRouteQuery_MultiHopCueAddsPPROutsideExecution(t *testing.T) {
	mode := model.CanonicalModes()[model.ModePlanning]
	r := RouteQuery("what led to the outage", mode, nil, nil)
	assert.Contains(t, r.Tiers, TierMultiHopPPR)
}

func TestRouteQuery_RelationalWordingWithEntities(t *testing.T) {
	mode := model.CanonicalModes()[model.ModeExecution]
	r := RouteQuery("who worked on project atlas", mode, []string{"atlas"}, nil)
	assert.Equal(t, []Tier{TierVector, TierGraph}, r.Tiers)
}

func TestRouteQuery_DefaultKnownEntity(t *testing.T) {
	mode := model.CanonicalModes()[model.ModeExecution]
	known := func(s string) bool { return s == "atlas" }
	r := RouteQuery("tell me about atlas", mode, []string{"atlas"}, known)
	assert.Equal(t, []Tier{TierVector, TierGraph}, r.Tiers)
}

func TestRouteQuery_DefaultNoEntities(t *testing.T) {
	mode := model.CanonicalModes()[model.ModeExecution]
	r := RouteQuery("tell me a joke", mode, nil, nil)
	assert.Equal(t, []Tier{TierVector}, r.Tiers)
}

func TestRouteQuery_HistoricalFlag(t *testing.T) {
	mode := model.CanonicalModes()[model.ModeExecution]
	r := RouteQuery("what did we previously decide", mode, nil, nil)
	assert.True(t, r.Historical)
}
