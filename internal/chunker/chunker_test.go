package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "word%d", i)
	}
	return b.String()
}

func TestChunk_SixHundredWords(t *testing.T) {
	c := New(DefaultConfig())
	doc := &domain.Document{
		Filename: "long.txt",
		Pages:    []string{words(600)},
	}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)

	total := 0
	for _, chunk := range chunks {
		total += chunk.TokenCount
		assert.LessOrEqual(t, chunk.TokenCount, 512)
	}
	assert.Equal(t, 600, total)
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(DefaultConfig())
	doc := &domain.Document{
		Filename: "doc.txt",
		Pages:    []string{words(1500)},
	}

	first := c.Chunk(doc)
	second := c.Chunk(doc)
	assert.Equal(t, first, second)
}

func TestChunk_OffsetsMonotonicNonOverlapping(t *testing.T) {
	c := New(DefaultConfig())
	doc := &domain.Document{
		Filename: "doc.txt",
		Pages:    []string{words(2000)},
	}

	chunks := c.Chunk(doc)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Less(t, chunk.StartIndex, chunk.EndIndex)
		if i > 0 {
			assert.GreaterOrEqual(t, chunk.StartIndex, chunks[i-1].EndIndex,
				"chunk %d overlaps its predecessor", i)
		}
	}
}

func TestChunk_TextMatchesOffsets(t *testing.T) {
	text := words(700)
	c := New(DefaultConfig())
	doc := &domain.Document{Filename: "doc.txt", Pages: []string{text}}

	for _, chunk := range c.Chunk(doc) {
		assert.Equal(t, text[chunk.StartIndex:chunk.EndIndex], chunk.Text)
	}
}

func TestChunk_PageRange(t *testing.T) {
	c := New(Config{MaxTokens: 50, PreserveSentences: false})
	doc := &domain.Document{
		Filename: "doc.txt",
		Pages:    []string{words(40), words(40), words(40)},
	}

	chunks := c.Chunk(doc)
	require.NotEmpty(t, chunks)

	// First chunk spans pages 0 and 1, and pages only move forward
	assert.Equal(t, 0, chunks[0].StartPage)
	prev := 0
	for _, chunk := range chunks {
		assert.GreaterOrEqual(t, chunk.StartPage, prev)
		assert.GreaterOrEqual(t, chunk.EndPage, chunk.StartPage)
		prev = chunk.StartPage
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, 2, last.EndPage)
}

func TestChunk_SentenceBreak(t *testing.T) {
	// 100 words ending a sentence near the budget boundary
	var b strings.Builder
	for i := 0; i < 120; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == 97 {
			b.WriteString("done.")
			continue
		}
		fmt.Fprintf(&b, "w%d", i)
	}

	c := New(Config{MaxTokens: 100, PreserveSentences: true})
	chunks := c.Chunk(&domain.Document{Filename: "s.txt", Pages: []string{b.String()}})

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "done."))
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New(DefaultConfig())
	assert.Empty(t, c.Chunk(&domain.Document{Filename: "empty.txt", Pages: []string{"", "  "}}))
	assert.Empty(t, c.Chunk(&domain.Document{Filename: "none.txt"}))
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 100, OverlapTokens: 100})
	assert.Equal(t, 25, c.config.OverlapTokens)
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 3, CountTokens("one two three"))
	assert.Equal(t, 600, CountTokens(words(600)))
}
