// Package chunker splits extracted documents into bounded-size chunks
// ready for embedding and indexing.
package chunker

import (
	"strings"
	"unicode"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// Config configures the chunker behavior.
type Config struct {
	// MaxTokens is the maximum whitespace-token count per chunk
	MaxTokens int

	// OverlapTokens is the token overlap between consecutive chunks.
	// Zero keeps chunk offsets strictly non-overlapping.
	OverlapTokens int

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         512,
		OverlapTokens:     0,
		PreserveSentences: true,
	}
}

// Chunker splits a document's page texts into chunks. Chunking is a pure
// function of the input text and the config: identical input always yields
// identical boundaries, counts and offsets.
type Chunker struct {
	config Config
}

// New creates a chunker with the given config.
func New(config Config) *Chunker {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	}
	if config.OverlapTokens >= config.MaxTokens {
		config.OverlapTokens = config.MaxTokens / 4
	}
	return &Chunker{config: config}
}

// token is one whitespace-separated word with its character span in the
// concatenated source.
type token struct {
	start int
	end   int
	page  int
}

// Chunk splits the document into bounded chunks. Page texts are concatenated
// with a newline separator; chunk offsets index into that concatenation.
func (c *Chunker) Chunk(doc *domain.Document) []domain.Chunk {
	text, tokens := concatenate(doc.Pages)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start := 0

	for start < len(tokens) {
		end := start + c.config.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		if end < len(tokens) && c.config.PreserveSentences {
			if bp := c.sentenceBreak(text, tokens, start, end); bp > start {
				end = bp
			}
		}

		first, last := tokens[start], tokens[end-1]
		chunks = append(chunks, domain.Chunk{
			Text:       text[first.start:last.end],
			Filename:   doc.Filename,
			SourceURL:  doc.SourceURL,
			StartPage:  first.page,
			EndPage:    last.page,
			StartIndex: first.start,
			EndIndex:   last.end,
			TokenCount: end - start,
		})

		if end >= len(tokens) {
			break
		}

		next := end - c.config.OverlapTokens
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// sentenceBreak looks backwards through the trailing tenth of the chunk for
// a token ending a sentence and breaks after it.
func (c *Chunker) sentenceBreak(text string, tokens []token, start, maxEnd int) int {
	lookback := (maxEnd - start) / 10
	if lookback < 1 {
		lookback = 1
	}
	for i := maxEnd - 1; i >= maxEnd-lookback && i > start; i-- {
		if endsSentence(text[tokens[i].start:tokens[i].end]) {
			return i + 1
		}
	}
	return maxEnd
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?")
}

// concatenate joins pages with a newline separator and tokenizes the result,
// tracking which page each token started on.
func concatenate(pages []string) (string, []token) {
	var b strings.Builder
	var tokens []token

	offset := 0
	for p, page := range pages {
		if p > 0 {
			b.WriteByte('\n')
			offset++
		}
		b.WriteString(page)

		inWord := false
		wordStart := 0
		for i, r := range page {
			if unicode.IsSpace(r) {
				if inWord {
					tokens = append(tokens, token{start: offset + wordStart, end: offset + i, page: p})
					inWord = false
				}
				continue
			}
			if !inWord {
				inWord = true
				wordStart = i
			}
		}
		if inWord {
			tokens = append(tokens, token{start: offset + wordStart, end: offset + len(page), page: p})
		}

		offset += len(page)
	}

	return b.String(), tokens
}

// CountTokens reports the whitespace token count of a text. This is the
// same estimate the chunker uses for chunk budgets.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
