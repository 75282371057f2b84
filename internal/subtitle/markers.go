package subtitle

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// MarkersHeader is the header row of a subtitle markers file.
var MarkersHeader = []string{"relativeMS", "samples", "charLength", "persistentId", "recordId"}

// ParseMarkers reads a tab separated subtitle markers file.
// Rows without a persistent id are kept; ids are assigned later by the id generator.
func ParseMarkers(data []byte) ([]Subtitle, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Subtitle{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.FieldsPerRecord = len(MarkersHeader)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, syncerr.Validation("markers header: %v", err)
	}
	if strings.Join(header, "\t") != strings.Join(MarkersHeader, "\t") {
		return nil, syncerr.Validation("unexpected markers header %q", strings.Join(header, "\t"))
	}

	subs := []Subtitle{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, syncerr.Validation("markers row %d: %v", len(subs)+2, err)
		}

		var ints [3]int
		for i := range ints {
			field := strings.TrimSpace(record[i])
			if field == "" {
				continue
			}
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, syncerr.Validation("markers row %d column %s: %v", len(subs)+2, MarkersHeader[i], err)
			}
			ints[i] = v
		}

		subs = append(subs, Subtitle{
			RelativeMS:   ints[0],
			Samples:      ints[1],
			CharLength:   ints[2],
			PersistentID: strings.TrimSpace(record[3]),
			RecordID:     strings.TrimSpace(record[4]),
		})
	}
	return subs, nil
}

// FormatMarkers renders subs as a subtitle markers file.
func FormatMarkers(subs []Subtitle) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	if err := w.Write(MarkersHeader); err != nil {
		return nil, fmt.Errorf("write markers header: %w", err)
	}
	for _, s := range subs {
		record := []string{
			strconv.Itoa(s.RelativeMS),
			strconv.Itoa(s.Samples),
			strconv.Itoa(s.CharLength),
			s.PersistentID,
			s.RecordID,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write markers row %s: %w", s.PersistentID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush markers: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseDocument pairs document content with its markers file. Without a markers file
// every subtitle mark gets a blank marker.
func ParseDocument(content, markers []byte, hasMarkers bool) (*Document, error) {
	subs := make([]Subtitle, CountMarks(string(content)))
	if hasMarkers {
		var err error
		if subs, err = ParseMarkers(markers); err != nil {
			return nil, err
		}
	}
	return NewDocument(string(content), subs)
}
