package oplog

import (
	"fmt"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// NewFileAnchor is the wire value of a nil insert anchor: insert at document start.
const NewFileAnchor = "new_file"

type repositoryJSON struct {
	FromGitCommit string              `json:"from_git_commit"`
	ToGitCommit   string              `json:"to_git_commit"`
	Files         map[string]fileJSON `json:"files"`
}

type fileJSON struct {
	ProductIdentityID string          `json:"product_identity_id"`
	Language          string          `json:"language"`
	Operations        []operationJSON `json:"operations"`
}

type operationJSON struct {
	OperationID   string             `json:"operation_id"`
	OperationType OperationType      `json:"operation_type"`
	AfterStid     string             `json:"after_stid,omitempty"`
	AffectedStids []affectedStidJSON `json:"affected_stids"`
}

type affectedStidJSON struct {
	Stid     string `json:"stid"`
	RecordID string `json:"record_id"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// Marshal serializes a repository log. Output is indented, map keys are sorted, and it
// ends with a newline, so the same log always produces the same bytes.
func Marshal(r *OperationsForRepository) ([]byte, error) {
	doc := repositoryJSON{
		FromGitCommit: r.FromCommit,
		ToGitCommit:   r.ToCommit,
		Files:         make(map[string]fileJSON, len(r.Files)),
	}
	for pid, f := range r.Files {
		doc.Files[pid] = toFileJSON(f)
	}

	data, err := jsonMarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal operations %s..%s: %w", short(r.FromCommit), short(r.ToCommit), err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a repository log and validates every operation.
func Unmarshal(data []byte) (*OperationsForRepository, error) {
	var doc repositoryJSON
	if err := jsonUnmarshal(data, &doc); err != nil {
		return nil, syncerr.Validation("malformed operations log: %v", err)
	}
	if doc.FromGitCommit == "" || doc.ToGitCommit == "" {
		return nil, syncerr.Validation("operations log without commit range")
	}

	r := NewOperationsForRepository(doc.FromGitCommit, doc.ToGitCommit)
	for key, fj := range doc.Files {
		f, err := fromFileJSON(fj)
		if err != nil {
			return nil, err
		}
		if f.ProductIdentityID == "" {
			f.ProductIdentityID = key
		}
		if f.ProductIdentityID != key {
			return nil, syncerr.Validation("file entry %s carries product identity id %s", key, f.ProductIdentityID)
		}
		r.Add(f)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func toFileJSON(f *OperationsForFile) fileJSON {
	fj := fileJSON{
		ProductIdentityID: f.ProductIdentityID,
		Language:          f.Language,
		Operations:        make([]operationJSON, 0, len(f.Operations)),
	}
	for _, op := range f.Operations {
		oj := operationJSON{
			OperationID:   op.OperationID,
			OperationType: op.Type,
			AffectedStids: make([]affectedStidJSON, 0, len(op.AffectedStids)),
		}
		if op.Type == OpInsert {
			oj.AfterStid = NewFileAnchor
			if op.AfterStid != nil {
				oj.AfterStid = *op.AfterStid
			}
		}
		for _, a := range op.AffectedStids {
			oj.AffectedStids = append(oj.AffectedStids, affectedStidJSON{
				Stid:     a.PersistentID,
				RecordID: a.RecordID,
				Before:   a.Before,
				After:    a.After,
			})
		}
		fj.Operations = append(fj.Operations, oj)
	}
	return fj
}

func fromFileJSON(fj fileJSON) (*OperationsForFile, error) {
	f := &OperationsForFile{
		ProductIdentityID: fj.ProductIdentityID,
		Language:          fj.Language,
		Operations:        make([]Operation, 0, len(fj.Operations)),
	}
	for _, oj := range fj.Operations {
		op := Operation{
			OperationID:   oj.OperationID,
			Type:          oj.OperationType,
			AffectedStids: make([]AffectedStid, 0, len(oj.AffectedStids)),
		}
		if op.Type == OpInsert {
			switch oj.AfterStid {
			case "":
				return nil, syncerr.Validation("operation %s: insert without after_stid", oj.OperationID)
			case NewFileAnchor:
			default:
				anchor := oj.AfterStid
				op.AfterStid = &anchor
			}
		}
		for _, aj := range oj.AffectedStids {
			op.AffectedStids = append(op.AffectedStids, AffectedStid{
				PersistentID: aj.Stid,
				RecordID:     aj.RecordID,
				Before:       aj.Before,
				After:        aj.After,
			})
		}
		f.Operations = append(f.Operations, op)
	}
	return f, nil
}

// MarshalFile serializes a single file log, used for display.
func MarshalFile(f *OperationsForFile) ([]byte, error) {
	data, err := jsonMarshalIndent(toFileJSON(f), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal operations for %s: %w", f.ProductIdentityID, err)
	}
	return append(data, '\n'), nil
}
