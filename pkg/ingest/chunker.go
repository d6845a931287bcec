package ingest

import (
	"regexp"
	"strings"
)

// Chunk is one windowed piece of normalized text plus its position in the
// original document.
type Chunk struct {
	Content  string
	Position int
}

// sentenceBoundary matches the end of a sentence: terminal punctuation
// followed by whitespace. Grounded on MarkdownChunker's
// approach of splitting on structural boundaries before falling back to
// fixed-size windowing (apps/rag-loader/internal/processor/chunker.go),
// adapted from header-splitting to sentence-splitting and from
// word-counting to rune-counting per spec.md §4.4.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s]+`)

// SentenceChunker performs sentence-aware windowing: it packs whole
// sentences into windows up to targetChars, carrying the last
// overlapChars of each window into the next one for retrieval context
// continuity.
type SentenceChunker struct {
	TargetChars  int
	OverlapChars int
}

// NewSentenceChunker constructs a chunker; targetChars must exceed
// overlapChars (enforced by internal/config.Config.Validate upstream).
func NewSentenceChunker(targetChars, overlapChars int) *SentenceChunker {
	return &SentenceChunker{TargetChars: targetChars, OverlapChars: overlapChars}
}

// Chunk splits normalized text into sentence-aware windows. Each chunk
// receives a monotonically increasing position starting at 0.
func (c *SentenceChunker) Chunk(text string) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var current strings.Builder
	position := 0

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Content: content, Position: position})
		position++
	}

	for _, sentence := range sentences {
		if runeLen(current.String()) > 0 && runeLen(current.String())+runeLen(sentence)+1 > c.TargetChars {
			flush()
			current.Reset()
			current.WriteString(overlapTail(chunks, c.OverlapChars))
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)

		// A single sentence longer than the target window is windowed on
		// its own, by rune count, so no chunk ever exceeds TargetChars
		// by more than one sentence's worth of overflow.
		for runeLen(current.String()) > c.TargetChars+c.OverlapChars {
			s := []rune(current.String())
			cut := c.TargetChars
			if cut > len(s) {
				cut = len(s)
			}
			chunks = append(chunks, Chunk{Content: strings.TrimSpace(string(s[:cut])), Position: position})
			position++
			current.Reset()
			current.WriteString(string(s[cut:]))
		}
	}
	flush()

	return chunks
}

func runeLen(s string) int { return len([]rune(s)) }

func overlapTail(chunks []Chunk, overlapChars int) string {
	if len(chunks) == 0 || overlapChars <= 0 {
		return ""
	}
	last := []rune(chunks[len(chunks)-1].Content)
	if len(last) <= overlapChars {
		return string(last)
	}
	return string(last[len(last)-overlapChars:])
}

func splitSentences(text string) []string {
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var sentences []string
	start := 0
	for _, loc := range locs {
		sentences = append(sentences, strings.TrimSpace(text[start:loc[1]]))
		start = loc[1]
	}
	if start < len(text) {
		sentences = append(sentences, strings.TrimSpace(text[start:]))
	}

	filtered := sentences[:0]
	for _, s := range sentences {
		if s != "" {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
