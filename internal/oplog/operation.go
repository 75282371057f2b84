// Package oplog models subtitle operation logs: the structural edits made to a primary
// document between two commits, and their replay onto other versions of the document.
package oplog

import (
	"fmt"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// OperationType is the closed set of structural edits.
type OperationType int

const (
	OpInsert OperationType = iota + 1
	OpDelete
	OpSplit
	OpMerge
	OpMoveLeft
	OpMoveRight
)

var operationTypeNames = map[OperationType]string{
	OpInsert:    "insert",
	OpDelete:    "delete",
	OpSplit:     "split",
	OpMerge:     "merge",
	OpMoveLeft:  "move_left",
	OpMoveRight: "move_right",
}

// ParseOperationType maps the wire name of an operation type to its value.
func ParseOperationType(name string) (OperationType, error) {
	for t, n := range operationTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, syncerr.Validation("unknown operation type %q", name)
}

func (t OperationType) String() string {
	if name, ok := operationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OperationType(%d)", int(t))
}

func (t OperationType) MarshalText() ([]byte, error) {
	name, ok := operationTypeNames[t]
	if !ok {
		return nil, syncerr.Validation("unknown operation type %d", int(t))
	}
	return []byte(name), nil
}

func (t *OperationType) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ContentState tags what an operation did to one affected subtitle.
type ContentState int

const (
	// ContentNew: the subtitle did not exist before the operation.
	ContentNew ContentState = iota + 1
	// ContentRemoved: the subtitle does not exist after the operation.
	ContentRemoved
	// ContentChanged: the subtitle exists on both sides.
	ContentChanged
)

func (s ContentState) String() string {
	switch s {
	case ContentNew:
		return "new"
	case ContentRemoved:
		return "removed"
	case ContentChanged:
		return "changed"
	}
	return "unknown"
}

// AffectedStid is one subtitle touched by an operation, with its text before and after.
type AffectedStid struct {
	PersistentID string
	RecordID     string
	Before       string
	After        string
}

// State classifies the affected subtitle. An empty Before wins over an empty After, so a
// subtitle blank on both sides counts as new.
func (a AffectedStid) State() ContentState {
	switch {
	case a.Before == "":
		return ContentNew
	case a.After == "":
		return ContentRemoved
	default:
		return ContentChanged
	}
}

// Operation is one structural edit affecting one or more adjacent subtitles.
type Operation struct {
	OperationID string
	Type        OperationType

	// AfterStid anchors an insert: the new subtitle goes right after this persistent id.
	// nil inserts at the start of the document. Unused by other types.
	AfterStid *string

	AffectedStids []AffectedStid
}

// IsInsertOrSplit reports whether the operation adds subtitles.
func (o *Operation) IsInsertOrSplit() bool {
	return o.Type == OpInsert || o.Type == OpSplit
}

// IsDeleteOrMerge reports whether the operation removes subtitles.
func (o *Operation) IsDeleteOrMerge() bool {
	return o.Type == OpDelete || o.Type == OpMerge
}

// Validate checks the shape invariants of the operation's type.
func (o *Operation) Validate() error {
	n := len(o.AffectedStids)
	switch o.Type {
	case OpInsert:
		if n != 1 || o.AffectedStids[0].State() != ContentNew {
			return syncerr.Validation("operation %s: insert needs exactly one new stid", o.OperationID)
		}
	case OpDelete:
		if n != 1 || o.AffectedStids[0].State() != ContentRemoved {
			return syncerr.Validation("operation %s: delete needs exactly one removed stid", o.OperationID)
		}
	case OpSplit, OpMerge:
		if n < 2 {
			return syncerr.Validation("operation %s: %s needs at least two stids, got %d", o.OperationID, o.Type, n)
		}
	case OpMoveLeft, OpMoveRight:
		if n != 2 {
			return syncerr.Validation("operation %s: %s needs exactly two stids, got %d", o.OperationID, o.Type, n)
		}
		for _, a := range o.AffectedStids {
			if a.State() != ContentChanged {
				return syncerr.Validation("operation %s: %s needs two changed stids, %s is %s", o.OperationID, o.Type, a.PersistentID, a.State())
			}
		}
	default:
		return syncerr.Validation("operation %s: unknown type %d", o.OperationID, int(o.Type))
	}
	for _, a := range o.AffectedStids {
		if a.PersistentID == "" {
			return syncerr.Validation("operation %s: affected stid without persistent id", o.OperationID)
		}
	}
	return nil
}

// PersistentIDs returns the persistent ids of the affected subtitles in order.
func (o *Operation) PersistentIDs() []string {
	ids := make([]string, len(o.AffectedStids))
	for i, a := range o.AffectedStids {
		ids[i] = a.PersistentID
	}
	return ids
}

// signature returns the content state of every affected stid, in order.
func (o *Operation) signature() []ContentState {
	sig := make([]ContentState, len(o.AffectedStids))
	for i, a := range o.AffectedStids {
		sig[i] = a.State()
	}
	return sig
}
