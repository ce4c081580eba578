package retrieve

import (
	"strings"

	"mnemosyne/internal/model"
)

// Tier enumerates the stores a routing decision can select.
type Tier string

const (
	TierVector      Tier = "vector"
	TierGraph       Tier = "graph"
	TierBayesian    Tier = "bayesian"
	TierMultiHopPPR Tier = "multi_hop_ppr"
)

// Route is a routing decision: the ordered tier list plus a
// human-readable routing string recorded verbatim in the trace (spec
// §4.5.2 "Record the exact routing decision (string) in the trace").
type Route struct {
	Tiers        []Tier
	RoutingLogic string
	Historical   bool
}

// EntityLookup reports whether one extracted entity surface is already a
// known graph node — a signal for the routing default case.
type EntityLookup func(surface string) bool

// RouteQuery implements the routing table of spec §4.5.2.
func RouteQuery(query string, mode model.ModeProfile, entities []string, knownEntity EntityLookup) Route {
	q := strings.ToLower(query)
	historical := isHistoricalQuery(query)

	switch {
	case isProbabilisticQuery(query):
		tiers := []Tier{TierVector, TierGraph}
		logic := "probabilistic_query:vector+graph"
		if mode.Name != model.ModeExecution || hasMultiHopCue(query) {
			tiers = append(tiers, TierBayesian)
			logic = "probabilistic_query:vector+graph+bayesian_tier_absent_fallback"
		}
		return Route{Tiers: tiers, RoutingLogic: logic, Historical: historical}

	case hasMultiHopCue(query):
		tiers := []Tier{TierVector, TierGraph}
		logic := "multi_hop_cue:vector+graph"
		if mode.Name != model.ModeExecution {
			tiers = append(tiers, TierMultiHopPPR)
			logic = "multi_hop_cue:vector+graph+multi_hop_ppr"
		} else {
			logic = "multi_hop_cue:vector+graph(ppr_skipped_in_execution_mode)"
		}
		return Route{Tiers: tiers, RoutingLogic: logic, Historical: historical}

	case containsRelationalWording(q) && len(entities) > 0:
		return Route{Tiers: []Tier{TierVector, TierGraph}, RoutingLogic: "entities+relational_wording:vector+graph", Historical: historical}

	default:
		known := 0
		for _, e := range entities {
			if knownEntity != nil && knownEntity(e) {
				known++
			}
		}
		if known >= 1 {
			return Route{Tiers: []Tier{TierVector, TierGraph}, RoutingLogic: "default:vector+graph(known_entity_match)", Historical: historical}
		}
		return Route{Tiers: []Tier{TierVector}, RoutingLogic: "default:vector_only", Historical: historical}
	}
}

var relationalCues = []string{"related to", "connected to", "linked to", "who worked on", "associated with"}

func containsRelationalWording(q string) bool {
	for _, c := range relationalCues {
		if strings.Contains(q, c) {
			return true
		}
	}
	return false
}
