// Package model holds the data-model types shared across the engine's
// components (spec.md section 3), kept dependency-free so every
// component package can import it without cycles.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Stage is a chunk's lifecycle stage (spec §3, §4.6).
type Stage string

const (
	StageActive       Stage = "active"
	StageDemoted      Stage = "demoted"
	StageArchived     Stage = "archived"
	StageRehydratable Stage = "rehydratable"
)

// Layer is a chunk's retention class (spec §3, Open Question in §9).
type Layer string

const (
	LayerShortTerm Layer = "short_term"
	LayerMidTerm   Layer = "mid_term"
	LayerLongTerm  Layer = "long_term"
)

// Tags holds the caller-extensible tagging-protocol fields (spec §6).
type Tags struct {
	Who     string `json:"who,omitempty"`
	When    string `json:"when,omitempty"`    // ISO-8601 UTC
	WhenEpoch int64 `json:"when_epoch,omitempty"`
	Project string `json:"project,omitempty"`
	Why     string `json:"why,omitempty"`
}

// Metadata is the closed-plus-extension-map structure replacing the
// source's dynamic metadata dict (spec §9 "Dynamic metadata dicts").
type Metadata struct {
	SourcePath    string    `json:"source_path,omitempty"`
	ChunkIndex    int       `json:"chunk_index"`
	Stage         Stage     `json:"stage"`
	Layer         Layer     `json:"layer,omitempty"`
	Tags          Tags      `json:"tags"`
	Category      string    `json:"category,omitempty"`
	Verified      bool      `json:"verified"`
	LastAccessed  time.Time `json:"last_accessed"`
	AccessCount   int       `json:"access_count"`
	Kind          string    `json:"kind,omitempty"` // "frontmatter" for frontmatter chunks
	Summary       string    `json:"summary,omitempty"`
	SummaryAt     time.Time `json:"summary_generated_at,omitempty"`
	// Extension carries caller-supplied keys not otherwise recognized.
	Extension map[string]string `json:"extension,omitempty"`
}

// Chunk is the atomic unit of retrieval (spec §3).
type Chunk struct {
	ID          string
	Text        string
	Embedding   []float32
	Metadata    Metadata
	TokenCount  int
	ContentHash string
}

// ChunkID derives the 128-bit (16-byte) stable identifier from
// (source_path, chunk_index, content_hash), rendered as a 32-char hex
// string, per spec §3.
func ChunkID(sourcePath string, chunkIndex int, contentHash string) string {
	h := sha256.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte{0})
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], uint32(chunkIndex))
	h.Write(idxBuf[:])
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// EntityType is the closed tag set for extracted entities (spec §3).
type EntityType string

const (
	EntityPerson  EntityType = "person"
	EntityProject EntityType = "project"
	EntityConcept EntityType = "concept"
	EntityTag     EntityType = "tag"
	EntityOther   EntityType = "other"
)

// Entity is a named thing extracted from chunk text (spec §3).
type Entity struct {
	ID            string
	CanonicalName string
	Type          EntityType
	FirstSeen     time.Time
	MentionCount  int
}

// EdgeType enumerates the graph's directed relation kinds (spec §3).
type EdgeType string

const (
	EdgeMentions    EdgeType = "mentions"
	EdgeCoOccurs    EdgeType = "co_occurs_with"
	EdgeSimilarTo   EdgeType = "similar_to"
	EdgeRelatedTo   EdgeType = "related_to"
)

// Edge is a directed, typed, weighted relation in the graph (spec §3).
type Edge struct {
	From       string
	To         string
	Type       EdgeType
	Weight     float64
	Confidence float64
}

// ModeName enumerates the interaction modes (spec §3).
type ModeName string

const (
	ModeExecution     ModeName = "execution"
	ModePlanning      ModeName = "planning"
	ModeBrainstorming ModeName = "brainstorming"
)

// Verification is a ModeProfile's verification setting (spec §3).
type Verification string

const (
	VerificationOn          Verification = "on"
	VerificationConditional Verification = "conditional"
	VerificationOff         Verification = "off"
)

// ModeProfile is the parameter set for an interaction mode (spec §3).
type ModeProfile struct {
	Name            ModeName
	TokenBudget     int
	CoreSize        int
	ExtendedSize    int
	Verification    Verification
	LatencyBudgetMs int
}

// CanonicalModes returns the three canonical instances from spec §3,
// fresh each call so callers may safely mutate the result (e.g. to apply
// config overrides).
func CanonicalModes() map[ModeName]ModeProfile {
	return map[ModeName]ModeProfile{
		ModeExecution: {
			Name: ModeExecution, TokenBudget: 5000, CoreSize: 5, ExtendedSize: 0,
			Verification: VerificationOn, LatencyBudgetMs: 500,
		},
		ModePlanning: {
			Name: ModePlanning, TokenBudget: 10000, CoreSize: 10, ExtendedSize: 5,
			Verification: VerificationConditional, LatencyBudgetMs: 1000,
		},
		ModeBrainstorming: {
			Name: ModeBrainstorming, TokenBudget: 20000, CoreSize: 15, ExtendedSize: 10,
			Verification: VerificationOff, LatencyBudgetMs: 2000,
		},
	}
}

// RetrievedChunkRef is a single entry of a QueryTrace's retrieved-chunks list.
type RetrievedChunkRef struct {
	ChunkID    string
	Score      float64
	SourceTier string
	Rank       int
}

// ErrorType classifies a failed query (spec §3, §4.7).
type ErrorType string

const (
	ErrorContextBug   ErrorType = "context_bug"
	ErrorModelBug     ErrorType = "model_bug"
	ErrorSystemError  ErrorType = "system_error"
)

// QueryTrace is the full record of one query execution (spec §3).
type QueryTrace struct {
	QueryID         string
	Timestamp       time.Time
	Query           string
	UserContext     map[string]string
	ModeDetected    ModeName
	ModeConfidence  float64
	StoresQueried   []string
	RoutingLogic    string
	RetrievedChunks []RetrievedChunkRef
	PhaseLatencies  map[string]time.Duration
	VerificationResult *bool
	Output          string
	TotalLatencyMs  int64
	Error           string
	ErrorType       ErrorType // empty string == null

	// Replay-determinism fields (spec §4.7).
	PPRAlpha      float64
	PPRMaxIter    int
	PPRTol        float64
	PPRSeedOrder  []string
	CatalogueVersion string
}
