package graph

import (
	"context"
	"regexp"
	"strings"

	"mnemosyne/internal/model"
)

// ExtractedEntity is one EntityExtractor hit: a surface form, its
// inferred type, and its byte-offset span in the source text (spec §4.4
// EntityExtractor contract: extract(text) -> set of {surface, type, span}).
type ExtractedEntity struct {
	Surface string
	Type    model.EntityType
	Start   int
	End     int
}

// EntityExtractor mirrors internal/rag/ingest/index_graph.go's
// EntityExtractor interface, specialized to the spec's typed entity set.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]ExtractedEntity, error)
}

var (
	tagRe          = regexp.MustCompile(`#[A-Za-z][A-Za-z0-9_/-]*`)
	capitalizedRe  = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)
	projectCueRe   = regexp.MustCompile(`(?i)\bproject\s+([A-Z][A-Za-z0-9_-]*)`)
)

// DeterministicExtractor is a dependency-free EntityExtractor: it
// recognizes #tag patterns, "project X" cues, and capitalized phrases
// (candidate person/concept names), since the spec treats true NER as
// an opaque external capability (see DESIGN.md Open Question decision).
type DeterministicExtractor struct{}

func NewDeterministicExtractor() DeterministicExtractor { return DeterministicExtractor{} }

func (DeterministicExtractor) Extract(_ context.Context, text string) ([]ExtractedEntity, error) {
	var out []ExtractedEntity

	for _, loc := range tagRe.FindAllStringIndex(text, -1) {
		out = append(out, ExtractedEntity{
			Surface: text[loc[0]:loc[1]], Type: model.EntityTag, Start: loc[0], End: loc[1],
		})
	}
	for _, loc := range projectCueRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, ExtractedEntity{
			Surface: text[loc[2]:loc[3]], Type: model.EntityProject, Start: loc[2], End: loc[3],
		})
	}
	for _, loc := range capitalizedRe.FindAllStringIndex(text, -1) {
		surface := text[loc[0]:loc[1]]
		if isSentenceStartArtifact(text, loc[0], surface) {
			continue
		}
		out = append(out, ExtractedEntity{Surface: surface, Type: model.EntityPerson, Start: loc[0], End: loc[1]})
	}
	return out, nil
}

// sentenceStartStopwords are common words that only ever show up
// capitalized because they open a sentence, never because they name an
// entity ("The project slipped" should not extract "The").
var sentenceStartStopwords = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "we": true, "they": true, "i": true, "he": true, "she": true,
	"a": true, "an": true, "there": true, "here": true,
}

// isSentenceStartArtifact filters out a single capitalized word that
// merely begins a sentence (preceded by '.', '!', '?', or nothing) and
// is also a common stopword when lowercased — "Python is great" still
// extracts "Python", but "The project slipped" does not extract "The".
func isSentenceStartArtifact(text string, start int, surface string) bool {
	if strings.Contains(surface, " ") {
		return false
	}
	if !sentenceStartStopwords[strings.ToLower(surface)] {
		return false
	}
	i := start - 1
	for i >= 0 && text[i] == ' ' {
		i--
	}
	return i < 0 || text[i] == '.' || text[i] == '!' || text[i] == '?'
}

// NormalizeSurface maps a surface form to its canonical entity key:
// lowercase, strip punctuation, collapse whitespace to underscore. Two
// surfaces that normalize equal are the same entity (spec §4.4).
func NormalizeSurface(surface string) string { return normalizeSurface(surface) }
