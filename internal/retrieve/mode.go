// Package retrieve implements RetrievalCore (spec §4.5): mode detection,
// query routing, the five-stage RECALL/FILTER/DEDUPLICATE/RANK/COMPRESS
// pipeline, and two-stage verification.
package retrieve

import (
	"regexp"
	"strings"

	"mnemosyne/internal/model"
)

// patternWeight pairs a compiled regex with its contribution to a
// mode's score. The catalogue is grouped by mode, "data, not code" in
// spirit (spec §4.5.1) — kept as a Go literal here since the module
// carries no rule-engine dependency, but shaped so it could be loaded
// from YAML without changing the scorer.
type patternWeight struct {
	re     *regexp.Regexp
	weight float64
}

var executionPatterns = compileAll([]string{
	`\bfix\b`, `\brun\b`, `\bexecute\b`, `\bdeploy\b`, `\bdebug\b`,
	`\bimplement\b`, `\brefactor\b`, `\btest\b`, `\bbuild\b`, `\binstall\b`,
	`\bcurrent(ly)?\b`,
	// a bare factual lookup ("what is the tech stack?") is the
	// default execution shape: answer from present state, not a
	// decision or an open-ended hypothetical (spec §8 scenario 1).
	`\bwhat\s+is\b`,
})

var planningPatterns = compileAll([]string{
	`\bplan\b`, `\bshould\s+i\b`, `\bstrategy\b`,
	`\broadmap\b`, `\bdecide\b`, `\bcompare\b`, `\btrade-?off\b`, `\bprioriti[sz]e\b`,
})

// "what if" is an open-ended hypothetical cue, not a decision-between-
// known-options cue — it belongs to brainstorming, not planning (spec §8
// scenario 2: "What if we used microservices?" routes to brainstorming).
var brainstormingPatterns = compileAll([]string{
	`\bbrainstorm\b`, `\bidea(s)?\b`, `\bwhat\s+are\s+some\b`, `\bexplore\b`,
	`\bimagine\b`, `\bcreative\b`, `\bpossibilit(y|ies)\b`, `\bwild(ly)?\b`, `\bwonder\b`,
	`\bwhat\s+if\b`,
})

func compileAll(patterns []string) []patternWeight {
	out := make([]patternWeight, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternWeight{re: regexp.MustCompile(`(?i)` + p), weight: 1})
	}
	return out
}

// DetectMode classifies a query into a ModeProfile plus a confidence in
// [0,1], per spec §4.5.1. Ties favor execution; confidence below 0.3
// falls back to execution at confidence 0.3.
func DetectMode(query string, profiles map[model.ModeName]model.ModeProfile) (model.ModeProfile, float64) {
	execScore := scorePatterns(query, executionPatterns)
	planScore := scorePatterns(query, planningPatterns)
	brainScore := scorePatterns(query, brainstormingPatterns)

	total := execScore + planScore + brainScore
	if total == 0 {
		return fallbackExecution(profiles), 0.3
	}

	best := model.ModeExecution
	bestScore := execScore
	if planScore > bestScore {
		best, bestScore = model.ModePlanning, planScore
	}
	if brainScore > bestScore {
		best, bestScore = model.ModeBrainstorming, brainScore
	}
	// Execution wins ties: only override execution when strictly greater.
	confidence := bestScore / total
	if confidence < 0.3 {
		return fallbackExecution(profiles), 0.3
	}
	profile, ok := profiles[best]
	if !ok {
		return fallbackExecution(profiles), 0.3
	}
	return profile, confidence
}

func fallbackExecution(profiles map[model.ModeName]model.ModeProfile) model.ModeProfile {
	if p, ok := profiles[model.ModeExecution]; ok {
		return p
	}
	def := model.CanonicalModes()
	return def[model.ModeExecution]
}

func scorePatterns(query string, patterns []patternWeight) float64 {
	var score float64
	for _, p := range patterns {
		if p.re.MatchString(query) {
			score += p.weight
		}
	}
	return score
}

// hasMultiHopCue reports whether the query contains an explicit
// multi-hop / causal-chain cue ("what led to X").
func hasMultiHopCue(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "what led to") || strings.Contains(q, "how did") && strings.Contains(q, "lead")
}

var probabilisticRe = regexp.MustCompile(`(?i)\bp\(\s*\w+\s*\|\s*\w+\s*\)`)

func isProbabilisticQuery(query string) bool { return probabilisticRe.MatchString(query) }

var historicalRe = regexp.MustCompile(`(?i)\b(history|historical|used to|previously|old|past)\b`)

func isHistoricalQuery(query string) bool { return historicalRe.MatchString(query) }

var currentRe = regexp.MustCompile(`(?i)\b(current|latest|now|today|recent)\b`)

// IsCurrentQuery reports whether the query text matches one of the
// "wrong-lifecycle" detection tokens (spec §4.7).
func IsCurrentQuery(query string) bool { return currentRe.MatchString(query) }
