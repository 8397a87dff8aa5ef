package knowledge

import (
	"strings"
)

// paragraphSeparator is the boundary the chunker splits and rejoins on.
const paragraphSeparator = "\n\n"

// Chunk splits content into chunks of at most maxChars characters, cutting
// only on blank-line paragraph boundaries. Paragraphs accumulate greedily;
// when the next paragraph would push the running chunk over the limit and
// the running chunk is non-empty, the chunk is flushed and the paragraph
// starts a new one. A single paragraph longer than maxChars is kept whole:
// severing domain text mid-paragraph costs more than an oversized chunk.
// Source order is preserved.
func Chunk(content string, maxChars int) []string {
	paragraphs := strings.Split(content, paragraphSeparator)

	var chunks []string
	var current strings.Builder

	for _, paragraph := range paragraphs {
		if current.Len() > 0 && current.Len()+len(paragraphSeparator)+len(paragraph) > maxChars {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(paragraphSeparator)
		}
		current.WriteString(paragraph)
	}

	if current.Len() > 0 {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}

	return chunks
}
