// Package chunker splits EPAS sections into token-bounded passages.
//
// Paragraphs (blank-line separated) are packed greedily under the chunk
// size. When a paragraph does not fit, the buffer is flushed and the next
// chunk is seeded with the last paragraph of the flushed one. Paragraphs
// larger than the chunk size are split at sentence boundaries instead.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/epas"
)

// DefaultChunkSize is the default token budget per chunk.
const DefaultChunkSize = 500

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	unsafeIDChars  = regexp.MustCompile(`[^\w.-]`)
)

// Chunker turns sections into chunks.
type Chunker struct {
	chunkSize int
	tokenizer Tokenizer
	log       *zap.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the token budget per chunk.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithTokenizer sets the tokenizer used for budgets and token counts.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chunker) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a chunker. Without WithTokenizer it counts whitespace words.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		tokenizer: Words{},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the configured token budget.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Tokenizer returns the tokenizer used for budgets.
func (c *Chunker) Tokenizer() Tokenizer { return c.tokenizer }

// Chunk splits one section. The only error is an invalid section; an empty
// section yields a single empty chunk.
func (c *Chunker) Chunk(section epas.Section) ([]epas.Chunk, error) {
	if strings.TrimSpace(section.Volume) == "" {
		return nil, fmt.Errorf("section %q has no volume: %w", section.SectionID, epas.ErrInvalidSection)
	}

	meta := epas.Metadata{
		Volume:       section.Volume,
		SectionID:    section.SectionID,
		SectionTitle: section.SectionTitle,
		StartPage:    section.StartPage,
		EndPage:      section.EndPage,
		DocumentType: section.DocumentType,
	}

	var texts []string
	if strings.TrimSpace(section.Text) == "" {
		texts = []string{""}
	} else {
		texts = c.split(section.Text, section.SectionID)
	}

	chunks := make([]epas.Chunk, len(texts))
	for i, text := range texts {
		m := meta
		m.ChunkIndex = i
		m.TotalChunks = len(texts)
		chunks[i] = epas.Chunk{
			ID:         ChunkID(m.SectionKey(), i),
			Text:       text,
			Metadata:   m,
			TokenCount: c.tokenizer.Count(text),
		}
	}
	return chunks, nil
}

// ChunkAll chunks every section. A section that fails, or whose chunk ids
// collide with an earlier section's, is logged and contributes no chunks;
// the rest of the batch is unaffected.
func (c *Chunker) ChunkAll(sections []epas.Section) []epas.Chunk {
	var all []epas.Chunk
	seen := make(map[string]bool)
	for _, s := range sections {
		chunks, err := c.Chunk(s)
		if err != nil {
			c.log.Error("failed to chunk section",
				zap.String("section_id", s.SectionID),
				zap.String("volume", s.Volume),
				zap.Error(err))
			continue
		}
		if dup := firstSeen(chunks, seen); dup != "" {
			c.log.Warn("skipping section with duplicate chunk id",
				zap.String("section_id", s.SectionID),
				zap.String("volume", s.Volume),
				zap.Int("start_page", s.StartPage),
				zap.String("chunk_id", dup))
			continue
		}
		for _, ch := range chunks {
			seen[ch.ID] = true
		}
		all = append(all, chunks...)
	}
	c.log.Info("chunked sections",
		zap.Int("sections", len(sections)),
		zap.Int("chunks", len(all)))
	return all
}

func firstSeen(chunks []epas.Chunk, seen map[string]bool) string {
	for _, ch := range chunks {
		if seen[ch.ID] {
			return ch.ID
		}
	}
	return ""
}

func (c *Chunker) split(text, sectionID string) []string {
	var chunks []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
		}
		current = nil
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := c.tokenizer.Count(para)

		if paraTokens > c.chunkSize {
			flush()
			chunks = append(chunks, c.packSentences(para, sectionID)...)
			continue
		}

		if len(current) == 0 || c.fits(append(current[:len(current):len(current)], para), "\n\n") {
			current = append(current, para)
			continue
		}

		// Carry the last paragraph forward as overlap when it still leaves
		// room for the incoming one.
		seed := current[len(current)-1]
		flush()
		if c.fits([]string{seed, para}, "\n\n") {
			current = append(current, seed)
		}
		current = append(current, para)
	}
	flush()

	return chunks
}

func (c *Chunker) packSentences(para, sectionID string) []string {
	var out []string
	var sub []string

	for _, sent := range splitSentences(para) {
		if len(sub) > 0 && !c.fits(append(sub[:len(sub):len(sub)], sent), " ") {
			out = append(out, strings.Join(sub, " "))
			sub = nil
		}
		if len(sub) == 0 {
			if n := c.tokenizer.Count(sent); n > c.chunkSize {
				c.log.Warn("sentence exceeds chunk size, keeping it whole",
					zap.String("section_id", sectionID),
					zap.Int("tokens", n),
					zap.Int("chunk_size", c.chunkSize))
			}
		}
		sub = append(sub, sent)
	}
	if len(sub) > 0 {
		out = append(out, strings.Join(sub, " "))
	}
	return out
}

func (c *Chunker) fits(parts []string, sep string) bool {
	return c.tokenizer.Count(strings.Join(parts, sep)) <= c.chunkSize
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks text after '.', '!' or '?' when whitespace follows.
func splitSentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r2) {
				break
			}
			j += s2
		}
		if j > i {
			add(text[start:i])
			start = j
			i = j
		}
	}
	add(text[start:])
	return out
}

// ChunkID derives the stable chunk id for position index of section key.
func ChunkID(key epas.SectionKey, index int) string {
	volume := key.Volume
	if volume == "" {
		volume = "unknown"
	}
	sectionID := key.SectionID
	if sectionID == "" {
		sectionID = "unknown"
	}
	sectionID = unsafeIDChars.ReplaceAllString(sectionID, "_")
	return "vol" + volume + "_sec" + sectionID + "_p" + strconv.Itoa(key.StartPage) + "_c" + strconv.Itoa(index)
}

// Stats summarizes a chunk set.
type Stats struct {
	TotalChunks int
	TotalTokens int
	AvgTokens   float64
	MinTokens   int
	MaxTokens   int
	Volumes     int
}

// ComputeStats returns token statistics for chunks. The zero Stats is
// returned for an empty slice.
func ComputeStats(chunks []epas.Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}
	s := Stats{
		TotalChunks: len(chunks),
		MinTokens:   chunks[0].TokenCount,
		MaxTokens:   chunks[0].TokenCount,
	}
	volumes := make(map[string]struct{})
	for _, c := range chunks {
		s.TotalTokens += c.TokenCount
		s.MinTokens = min(s.MinTokens, c.TokenCount)
		s.MaxTokens = max(s.MaxTokens, c.TokenCount)
		volumes[c.Metadata.Volume] = struct{}{}
	}
	s.AvgTokens = float64(s.TotalTokens) / float64(len(chunks))
	s.Volumes = len(volumes)
	return s
}
