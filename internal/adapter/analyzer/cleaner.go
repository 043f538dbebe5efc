package analyzer

import (
	"regexp"
	"strings"
)

var (
	inlineSpace   = regexp.MustCompile(`[^\S\n]+`)
	specialChars  = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)
	repeatedPunct = regexp.MustCompile(`\.{2,}|,{2,}|!{2,}|\?{2,}`)
)

// CleanOptions selects which normalisation passes run.
type CleanOptions struct {
	NormalizeWhitespace bool
	RemoveSpecialChars  bool
	CollapsePunctuation bool
	// Separator is the paragraph delimiter the chunker splits on. The passes
	// run inside each paragraph and never touch the separator itself.
	// Empty means "\n".
	Separator string
}

// DefaultCleanOptions keeps special characters and normalises the rest.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		NormalizeWhitespace: true,
		CollapsePunctuation: true,
		Separator:           "\n",
	}
}

// Cleaner normalises raw document text before it is chunked. Paragraph
// separators survive cleaning so the chunker still sees the boundaries.
type Cleaner struct {
	opts CleanOptions
}

func NewCleaner(opts CleanOptions) *Cleaner {
	if opts.Separator == "" {
		opts.Separator = "\n"
	}
	return &Cleaner{opts: opts}
}

// Clean applies the configured passes to every paragraph of text and joins
// the non-empty results with the separator.
func (c *Cleaner) Clean(text string) string {
	if text == "" {
		return ""
	}
	if !c.opts.NormalizeWhitespace && !c.opts.RemoveSpecialChars && !c.opts.CollapsePunctuation {
		return text
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, c.opts.Separator)

	kept := paragraphs[:0]
	for _, p := range paragraphs {
		p = c.cleanParagraph(p)
		if c.opts.NormalizeWhitespace && p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, c.opts.Separator)
}

func (c *Cleaner) cleanParagraph(text string) string {
	if c.opts.NormalizeWhitespace {
		text = normalizeLines(text)
	}
	if c.opts.RemoveSpecialChars {
		text = specialChars.ReplaceAllString(text, "")
	}
	if c.opts.CollapsePunctuation {
		text = repeatedPunct.ReplaceAllStringFunc(text, func(run string) string {
			return run[:1]
		})
	}
	return text
}

// CleanAll cleans every document, preserving order.
func (c *Cleaner) CleanAll(docs []string) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = c.Clean(doc)
	}
	return out
}

// normalizeLines collapses inline whitespace, trims every line and drops
// blank ones.
func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")

	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
