// Package subtitle holds the subtitle boundary model and the text helpers used to
// materialize subtitles with their content.
package subtitle

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// Mark is the character that opens every subtitle in document content.
const Mark = "@"

// Subtitle is one boundary marker with a stable identity.
// Its position in a document is the slice index; there is no order field.
type Subtitle struct {
	PersistentID string
	RecordID     string
	RelativeMS   int
	Samples      int
	CharLength   int

	// Content is only set when the subtitle is materialized with text.
	// It always starts with Mark.
	Content string
}

// HasContent reports whether the subtitle was materialized with text.
func (s Subtitle) HasContent() bool {
	return s.Content != ""
}

// Body returns the content without the leading subtitle mark.
func (s Subtitle) Body() string {
	return strings.TrimPrefix(s.Content, Mark)
}

// PersistentIDs returns the ids of subs in order.
func PersistentIDs(subs []Subtitle) []string {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.PersistentID
	}
	return ids
}

// IndexOf returns the index of the subtitle with persistent id, or -1.
func IndexOf(subs []Subtitle, persistentID string) int {
	for i, s := range subs {
		if s.PersistentID == persistentID {
			return i
		}
	}
	return -1
}

// Fingerprint hashes the structure (the ordered persistent ids) of subs.
// Content and timing do not contribute.
func Fingerprint(subs []Subtitle) string {
	hash := md5.New()
	for _, s := range subs {
		hash.Write([]byte(s.PersistentID))
		hash.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// Document is a text document split at its subtitle marks.
type Document struct {
	// Head is the text before the first subtitle mark.
	Head      string
	Subtitles []Subtitle
}

// NewDocument pairs the content of a document with its subtitle markers.
// The number of marks in content must equal len(markers).
func NewDocument(content string, markers []Subtitle) (*Document, error) {
	head, fragments := SplitMarks(content)
	if len(fragments) != len(markers) {
		return nil, syncerr.Validation("content has %d subtitle marks but markers list %d subtitles", len(fragments), len(markers))
	}

	subs := make([]Subtitle, len(markers))
	for i, m := range markers {
		m.Content = fragments[i]
		subs[i] = m
	}
	return &Document{Head: head, Subtitles: subs}, nil
}

// Content renders the document back to text.
func (d *Document) Content() string {
	var b strings.Builder
	b.WriteString(d.Head)
	for _, s := range d.Subtitles {
		b.WriteString(s.Content)
	}
	return b.String()
}

// Markers returns the subtitles without content.
func (d *Document) Markers() []Subtitle {
	out := make([]Subtitle, len(d.Subtitles))
	for i, s := range d.Subtitles {
		s.Content = ""
		out[i] = s
	}
	return out
}

// SplitMarks splits content into the text before the first mark and one fragment per
// subtitle mark. Each fragment starts with Mark.
func SplitMarks(content string) (string, []string) {
	idx := strings.Index(content, Mark)
	if idx < 0 {
		return content, nil
	}

	head := content[:idx]
	rest := content[idx:]
	var fragments []string
	for rest != "" {
		next := strings.Index(rest[len(Mark):], Mark)
		if next < 0 {
			fragments = append(fragments, rest)
			break
		}
		end := next + len(Mark)
		fragments = append(fragments, rest[:end])
		rest = rest[end:]
	}
	return head, fragments
}

// CountMarks returns the number of subtitle marks in content.
func CountMarks(content string) int {
	return strings.Count(content, Mark)
}
