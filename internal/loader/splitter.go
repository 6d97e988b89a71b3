package loader

import (
	"strings"
	"unicode"
)

// Default splitter settings.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts text into overlapping windows of at most Size characters,
// preferring to break on whitespace.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter. Out-of-range values fall back to the defaults.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/2)
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the non-blank pieces of text in order.
func (s Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := min(start+s.Size, len(runes))
		if end < len(runes) {
			end = breakPoint(runes, start, end)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		// Do not start the next window mid-word.
		for next > start && next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return pieces
}

// breakPoint moves end back to the last whitespace in the second half of the window.
func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
