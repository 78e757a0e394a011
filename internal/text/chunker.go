// Package text splits extracted document text into bounded chunks, the
// unit of embedding and retrieval. Boundaries prefer paragraph breaks,
// then sentence ends, then whitespace; a multi-byte character is never
// split because all slicing happens on runes.
package text

import (
	"strings"
	"unicode"
)

// Chunk is one slice of a document's extracted text. Start and End are
// rune offsets into the source, kept for citation. Index is the stable
// ordinal inside the document; consecutive chunks overlap, so ranges may
// intersect.
type Chunk struct {
	Index   int
	Content string
	Start   int
	End     int
}

// DefaultOverlap is the fraction of the chunk size shared between
// consecutive chunks to preserve context across boundaries.
const DefaultOverlap = 0.1

// Split chunks text into pieces of at most maxSize runes with the given
// overlap fraction. Whitespace-only pieces are dropped; indexes stay
// contiguous over the pieces that remain.
func Split(text string, maxSize int, overlap float64) []Chunk {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 || overlap >= 1 {
		overlap = DefaultOverlap
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	overlapRunes := int(float64(maxSize) * overlap)
	if overlapRunes >= maxSize {
		overlapRunes = maxSize - 1
	}

	var chunks []Chunk
	pos := 0
	for pos < len(runes) {
		end := pos + maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, pos, end)
		}

		if c, ok := trimmed(runes, pos, end); ok {
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}

		if end == len(runes) {
			break
		}
		next := end - overlapRunes
		if next <= pos {
			// Overlap must never stall the walk.
			next = end
		}
		pos = next
	}
	return chunks
}

// breakPoint picks the best cut position in (lo, hi]: a paragraph break,
// failing that a sentence end, failing that any whitespace, failing that
// the hard limit. Candidates closer than half a chunk to the start are
// ignored so chunks keep a useful minimum size.
func breakPoint(runes []rune, lo, hi int) int {
	floor := lo + (hi-lo)/2

	for i := hi; i > floor; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hi; i > floor; i-- {
		if isSentenceEnd(runes, i-1) {
			return i
		}
	}
	for i := hi; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return hi
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 >= len(runes) || unicode.IsSpace(runes[i+1])
}

// trimmed shrinks [start,end) to its non-whitespace core so offsets point
// at the text actually embedded.
func trimmed(runes []rune, start, end int) (Chunk, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return Chunk{}, false
	}
	return Chunk{Content: string(runes[start:end]), Start: start, End: end}, true
}

// Normalize collapses Windows line endings and trims trailing space per
// line, a cheap cleanup pass before chunking extracted text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
