package subtitle

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// SplitContent divides the content of one subtitle into parts subtitles.
// Every returned piece starts with Mark. Joining the pieces and removing the added
// marks reproduces the original content. When no boundary is left to split at, the
// remaining pieces carry only the mark.
func SplitContent(content string, parts int) []string {
	if parts < 1 {
		parts = 1
	}

	pieces := []string{strings.TrimPrefix(content, Mark)}
	for len(pieces) < parts {
		last := pieces[len(pieces)-1]
		head, tail := splitOnce(last)
		pieces[len(pieces)-1] = head
		pieces = append(pieces, tail)
	}

	for i, p := range pieces {
		pieces[i] = Mark + p
	}
	return pieces
}

// splitOnce splits s at the sentence boundary closest to its middle, falling back to
// the closest word boundary.
func splitOnce(s string) (string, string) {
	if offset := closest(sentenceBoundaries(s), len(s)/2); offset > 0 {
		return s[:offset], s[offset:]
	}
	if offset := closest(wordBoundaries(s), len(s)/2); offset > 0 {
		return s[:offset], s[offset:]
	}
	return s, ""
}

// sentenceBoundaries returns the byte offsets where a new sentence starts, excluding 0
// and len(s).
func sentenceBoundaries(s string) []int {
	var offsets []int
	offset := 0
	state := -1
	rest := s
	for rest != "" {
		var sentence string
		sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
		offset += len(sentence)
		if rest != "" {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

// wordBoundaries returns the byte offsets of words that follow whitespace.
func wordBoundaries(s string) []int {
	var offsets []int
	offset := 0
	state := -1
	afterSpace := false
	rest := s
	for rest != "" {
		var word string
		word, rest, state = uniseg.FirstWordInString(rest, state)
		r, _ := utf8.DecodeRuneInString(word)
		isSpace := unicode.IsSpace(r)
		if !isSpace && afterSpace && offset > 0 {
			offsets = append(offsets, offset)
		}
		afterSpace = isSpace
		offset += len(word)
	}
	return offsets
}

// closest returns the offset nearest to target, preferring the earlier one on ties,
// or 0 when offsets is empty.
func closest(offsets []int, target int) int {
	best := 0
	bestDist := -1
	for _, o := range offsets {
		dist := o - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = o, dist
		}
	}
	return best
}
