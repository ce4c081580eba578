package trace

import (
	"mnemosyne/internal/model"
	"mnemosyne/internal/retrieve"
)

// Classify assigns an ErrorType to a failed or poorly-answered query,
// per spec §4.7's three-way taxonomy:
//   - system_error: an infrastructure failure occurred (vector tier
//     failure, store unavailable) — the trace already carries a
//     non-empty Error string from a hard failure.
//   - context_bug: the query used a "current/latest/now/today/recent"
//     token (retrieve.IsCurrentQuery) but one or more of the chunks
//     actually returned came from a demoted/archived/rehydratable
//     stage — the pipeline answered from stale content when the user
//     asked for the current state of something.
//   - model_bug: none of the above; retrieval and lifecycle behaved
//     correctly but the output was still judged wrong, pointing at the
//     answering model rather than this system.
//
// retrievedStages carries the model.Stage of each chunk actually
// returned for the query — the trace record itself doesn't carry full
// chunk metadata, so the caller supplies it from the chunks it already
// has in hand (e.g. a retrieve.Response's Core/Extended).
func Classify(t model.QueryTrace, retrievedStages []model.Stage) model.ErrorType {
	if t.Error != "" {
		return model.ErrorSystemError
	}
	if retrieve.IsCurrentQuery(t.Query) && hasStaleStage(retrievedStages) {
		return model.ErrorContextBug
	}
	return model.ErrorModelBug
}

func hasStaleStage(stages []model.Stage) bool {
	for _, s := range stages {
		if s == model.StageDemoted || s == model.StageArchived || s == model.StageRehydratable {
			return true
		}
	}
	return false
}
