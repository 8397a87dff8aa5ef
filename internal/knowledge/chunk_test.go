package knowledge

import (
	"strings"
	"testing"
)

func TestChunkEmpty(t *testing.T) {
	if got := Chunk("", 100); len(got) != 0 {
		t.Errorf("Chunk(\"\") = %v, want empty", got)
	}
}

func TestChunkSingleParagraph(t *testing.T) {
	got := Chunk("one short paragraph", 100)
	if len(got) != 1 || got[0] != "one short paragraph" {
		t.Errorf("got %v, want the paragraph unchanged", got)
	}
}

func TestChunkRespectsMax(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 20; i++ {
		paragraphs = append(paragraphs, strings.Repeat("x", 40))
	}
	content := strings.Join(paragraphs, "\n\n")

	chunks := Chunk(content, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has %d chars, exceeds 100", i, len(c))
		}
	}
}

func TestChunkPreservesContent(t *testing.T) {
	content := "alpha\n\nbeta\n\ngamma\n\ndelta"
	chunks := Chunk(content, 12)

	joined := strings.Join(chunks, "\n\n")
	if joined != content {
		t.Errorf("rejoined = %q, want %q", joined, content)
	}
}

func TestChunkOversizedParagraphKeptWhole(t *testing.T) {
	big := strings.Repeat("y", 500)
	content := "small\n\n" + big + "\n\nsmall again"

	chunks := Chunk(content, 100)
	found := false
	for _, c := range chunks {
		if c == big {
			found = true
		}
		if len(c) > 100 && c != big {
			t.Errorf("unexpected oversized chunk: %d chars", len(c))
		}
	}
	if !found {
		t.Error("oversized paragraph was split or lost")
	}
}

func TestChunkOrderStable(t *testing.T) {
	content := "first\n\nsecond\n\nthird"
	chunks := Chunk(content, 6)

	want := []string{"first", "second", "third"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}
