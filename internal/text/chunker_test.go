package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, Split("", 100, 0.1))
	assert.Nil(t, Split("   \n\t  ", 100, 0.1))
}

func TestSplit_SingleChunk(t *testing.T) {
	chunks := Split("hello world", 100, 0.1)

	assert.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	input := strings.Repeat("word ", 400) // 2000 runes
	chunks := Split(input, 500, 0)

	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), 500, "chunk %d too large", c.Index)
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("a", 80)
	second := strings.Repeat("b", 80)
	input := first + "\n\n" + second

	chunks := Split(input, 100, 0)

	assert.Len(t, chunks, 2)
	assert.Equal(t, first, chunks[0].Content)
	assert.Equal(t, second, chunks[1].Content)
}

func TestSplit_PrefersSentenceEnd(t *testing.T) {
	input := "This sentence is the first one here. This trailing part continues on past the limit with more words"
	chunks := Split(input, 60, 0)

	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, "This sentence is the first one here.", chunks[0].Content)
}

func TestSplit_IndexesAreContiguous(t *testing.T) {
	input := strings.Repeat("some words in a line. ", 200)
	chunks := Split(input, 300, 0.1)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplit_OverlapSharesText(t *testing.T) {
	input := strings.Repeat("abcde ", 100)
	chunks := Split(input, 120, 0.25)

	assert.Greater(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].Start, chunks[i-1].End, "chunk %d does not overlap its predecessor", i)
	}
}

func TestSplit_OffsetsPointIntoSource(t *testing.T) {
	input := "First paragraph with some words.\n\nSecond paragraph with more words.\n\nThird paragraph closes it."
	runes := []rune(input)

	for _, c := range Split(input, 40, 0.1) {
		assert.Equal(t, c.Content, string(runes[c.Start:c.End]))
	}
}

func TestSplit_MultiByteRunesNeverSplit(t *testing.T) {
	input := strings.Repeat("日本語のテキスト ", 50)
	chunks := Split(input, 64, 0.1)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d split a rune", c.Index)
	}
}

func TestSplit_ZeroOverlapNeverStalls(t *testing.T) {
	input := strings.Repeat("x", 5000)
	chunks := Split(input, 100, 0)

	assert.Equal(t, 50, len(chunks))
}

func TestNormalize(t *testing.T) {
	input := "line one  \r\nline two\t\r\nline three"
	assert.Equal(t, "line one\nline two\nline three", Normalize(input))
}
