package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
	DefaultSeparator = "\n"
)

// ParagraphChunker packs separator-delimited paragraphs into chunks of at most
// chunkSize characters. Neighbouring chunks share roughly overlap characters
// taken from the end of the previous chunk.
type ParagraphChunker struct {
	chunkSize int
	overlap   int
	separator string
	sepLen    int
}

func NewParagraphChunker(chunkSize, overlap int, separator string) *ParagraphChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	return &ParagraphChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		separator: separator,
		sepLen:    charLen(separator),
	}
}

// Split breaks text into chunks in source order. Lengths are measured in
// characters and include the separators that join paragraphs, so every chunk
// fits in chunkSize except a single sentence that is longer than chunkSize on
// its own.
func (c *ParagraphChunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, raw := range strings.Split(text, c.separator) {
		paragraph := strings.TrimSpace(raw)
		if paragraph == "" {
			continue
		}
		pLen := charLen(paragraph)

		if pLen > c.chunkSize {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, c.separator))
				current, currentLen = nil, 0
			}
			chunks = append(chunks, c.packSentences(paragraph)...)
			continue
		}

		if len(current) > 0 && currentLen+c.sepLen+pLen > c.chunkSize {
			chunks = append(chunks, strings.Join(current, c.separator))
			current = c.overlapTail(current, pLen)
			currentLen = c.joinedLen(current)
		}

		if len(current) > 0 {
			currentLen += c.sepLen
		}
		current = append(current, paragraph)
		currentLen += pLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, c.separator))
	}

	return chunks
}

// SplitMany splits every text in order and concatenates the results.
func (c *ParagraphChunker) SplitMany(texts []string) []string {
	var all []string
	for _, text := range texts {
		all = append(all, c.Split(text)...)
	}
	return all
}

// overlapTail walks backward from the end of a closed chunk collecting up to
// overlap characters. Whole paragraphs are preferred; the paragraph that would
// cross the budget contributes only its trailing words. The result is trimmed
// from the front until the next paragraph fits after it.
func (c *ParagraphChunker) overlapTail(closed []string, nextLen int) []string {
	if c.overlap == 0 {
		return nil
	}

	var tail []string
	used := 0
	for i := len(closed) - 1; i >= 0; i-- {
		p := closed[i]
		cost := charLen(p)
		if len(tail) > 0 {
			cost += c.sepLen
		}
		if used+cost <= c.overlap {
			tail = append(tail, p)
			used += cost
			continue
		}

		remaining := c.overlap - used
		if len(tail) > 0 {
			remaining -= c.sepLen
		}
		if frag := trailingFragment(p, remaining); frag != "" {
			tail = append(tail, frag)
		}
		break
	}

	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}

	for len(tail) > 0 && c.joinedLen(tail)+c.sepLen+nextLen > c.chunkSize {
		tail = tail[1:]
	}

	return tail
}

// packSentences greedily groups the sentences of an oversized paragraph.
func (c *ParagraphChunker) packSentences(paragraph string) []string {
	var out []string
	var buf []string
	bufLen := 0

	for _, sentence := range splitSentences(paragraph) {
		sLen := charLen(sentence)
		if len(buf) > 0 && bufLen+1+sLen > c.chunkSize {
			out = append(out, strings.Join(buf, " "))
			buf, bufLen = nil, 0
		}
		if len(buf) > 0 {
			bufLen++
		}
		buf = append(buf, sentence)
		bufLen += sLen
	}

	if len(buf) > 0 {
		out = append(out, strings.Join(buf, " "))
	}
	return out
}

func (c *ParagraphChunker) joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := c.sepLen * (len(parts) - 1)
	for _, p := range parts {
		n += charLen(p)
	}
	return n
}

// splitSentences cuts at whitespace that follows '.', '!' or '?'.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 1; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || !isTerminal(runes[i-1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:i])); s != "" {
			sentences = append(sentences, s)
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start = i
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// trailingFragment returns the last budget characters of p, moved forward to
// the start of a word.
func trailingFragment(p string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(p)
	if len(runes) <= budget {
		return p
	}

	start := len(runes) - budget
	if !unicode.IsSpace(runes[start-1]) {
		for start < len(runes) && !unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
