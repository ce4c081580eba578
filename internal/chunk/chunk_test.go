package chunk

import (
	"strings"
	"testing"
)

func TestChunk_EmptyDocument(t *testing.T) {
	drafts, diags := Chunk(Document{Path: "a.md", Text: ""})
	if drafts != nil || diags != nil {
		t.Fatalf("expected nil/nil for empty document, got %v %v", drafts, diags)
	}
}

func TestChunk_BinaryContent(t *testing.T) {
	binary := strings.Repeat("\x00\x01\x02", 50)
	drafts, diags := Chunk(Document{Path: "bin", Text: binary})
	if len(drafts) != 0 {
		t.Fatalf("expected no chunks for binary content, got %d", len(drafts))
	}
	if len(diags) == 0 {
		t.Fatal("expected a soft diagnostic for binary content")
	}
}

func TestChunk_FrontmatterExtracted(t *testing.T) {
	text := "---\ntitle: hello\n---\n\n" + strings.Repeat("word ", 150)
	drafts, _ := Chunk(Document{Path: "f.md", Text: text})
	if len(drafts) < 2 {
		t.Fatalf("expected at least 2 chunks (frontmatter + body), got %d", len(drafts))
	}
	if drafts[0].Kind != "frontmatter" {
		t.Fatalf("expected first chunk to be frontmatter, got kind=%q", drafts[0].Kind)
	}
}

func TestChunk_OversizedCodeBlockKeptAtomic(t *testing.T) {
	code := "```go\n" + strings.Repeat("x := 1\n", 200) + "```"
	drafts, _ := Chunk(Document{Path: "c.md", Text: code})
	if len(drafts) != 1 {
		t.Fatalf("expected exactly one atomic code chunk, got %d", len(drafts))
	}
	if !strings.HasPrefix(drafts[0].Text, "```go") {
		t.Fatalf("code block not preserved verbatim: %q", drafts[0].Text[:20])
	}
}

func TestChunk_WindowsWithinBounds(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(strings.Repeat("word ", 40))
		sb.WriteString("\n\n")
	}
	drafts, _ := Chunk(Document{Path: "long.md", Text: sb.String()})
	if len(drafts) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(drafts))
	}
	for _, d := range drafts[:len(drafts)-1] {
		if d.TokenCount < MinTokens || d.TokenCount > MaxTokens {
			t.Fatalf("chunk %d token count %d out of [%d,%d]", d.Index, d.TokenCount, MinTokens, MaxTokens)
		}
	}
}

func TestChunk_DeterministicContentHash(t *testing.T) {
	text := strings.Repeat("stable content ", 50)
	d1, _ := Chunk(Document{Path: "p.md", Text: text})
	d2, _ := Chunk(Document{Path: "p.md", Text: text})
	if len(d1) == 0 || len(d2) == 0 {
		t.Fatal("expected chunks")
	}
	if d1[0].ContentHash != d2[0].ContentHash {
		t.Fatal("identical input must hash identically")
	}
}
