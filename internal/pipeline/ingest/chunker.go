package ingest

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one piece of a document, sized in tokens.
type Chunk struct {
	Text       string
	Position   int
	TokenCount int
}

// Chunker splits text into token-bounded chunks with overlap. Counting uses
// the cl100k_base encoding; if the encoding cannot be loaded the chunker
// falls back to a byte-length estimate so ingestion keeps working offline.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	count        func(text string) int
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	counter := estimateTokens
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		counter = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	}
	return newChunkerWithCounter(chunkSize, chunkOverlap, counter)
}

func newChunkerWithCounter(chunkSize, chunkOverlap int, count func(string) int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		count:        count,
	}
}

// CountTokens returns the token count for text.
func (c *Chunker) CountTokens(text string) int {
	return c.count(text)
}

// Split breaks text into chunks of at most chunkSize tokens, carrying
// chunkOverlap tokens of trailing lines into the next chunk.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")

	var chunks []Chunk
	var current []string
	currentTokens := 0
	freshLines := 0

	flush := func() {
		// Only overlap carry-over left: nothing new to emit.
		if len(current) == 0 || freshLines == 0 {
			return
		}
		chunkText := strings.TrimSpace(strings.Join(current, "\n"))
		if chunkText == "" {
			current = nil
			currentTokens = 0
			freshLines = 0
			return
		}
		chunks = append(chunks, Chunk{
			Text:       chunkText,
			Position:   len(chunks),
			TokenCount: currentTokens,
		})

		// Seed the next chunk with trailing lines up to the overlap budget.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0 && carryTokens < c.chunkOverlap; i-- {
			carry = append([]string{current[i]}, carry...)
			carryTokens += c.count(current[i])
		}
		current = carry
		currentTokens = carryTokens
		freshLines = 0
	}

	for _, line := range lines {
		lineTokens := c.count(line)

		// A single oversized line becomes its own chunk rather than being lost.
		if lineTokens > c.chunkSize {
			flush()
			current = nil
			currentTokens = 0
			freshLines = 0
			chunks = append(chunks, Chunk{
				Text:       strings.TrimSpace(line),
				Position:   len(chunks),
				TokenCount: lineTokens,
			})
			continue
		}

		if currentTokens+lineTokens > c.chunkSize {
			flush()
		}
		current = append(current, line)
		currentTokens += lineTokens
		freshLines++
	}
	flush()

	return chunks
}

// estimateTokens approximates ~4 bytes per token for English-like text.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
