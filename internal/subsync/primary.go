package subsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imazen/repositext-sub003/internal/idgen"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/repository"
	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// syncPrimaryIfNeeded persists the primary log from the end of the newest log to the
// target, so the target becomes a log boundary. Persisted logs are never rewritten, so
// the log is withheld when any primary document could not be diffed; foreign files are
// then synced with computed logs.
func (e *Engine) syncPrimaryIfNeeded(ctx context.Context, r *run) error {
	latest, err := e.store.Latest()
	if err != nil {
		return err
	}

	from := r.opts.FromCommit
	if latest != nil {
		isBoundary, err := e.store.IsBoundary(r.target)
		if err != nil {
			return err
		}
		if isBoundary {
			slog.Debug("primary log up to date", "run", r.id, "target", oplog.TruncateCommit(r.target))
			return nil
		}
		from = latest.To
	}
	if from == "" {
		slog.Warn("no operation log exists and no start commit was given; foreign files will be synced with computed logs", "run", r.id)
		return nil
	}

	resolved, err := r.history.ResolveCommit(ctx, from)
	if err != nil {
		return fmt.Errorf("resolve log start %s: %w", from, err)
	}
	from = resolved
	if oplog.SameCommit(from, r.target) {
		return nil
	}
	if latest != nil {
		fromTime, err := r.history.CommitTime(ctx, from)
		if err != nil {
			return err
		}
		targetTime, err := r.history.CommitTime(ctx, r.target)
		if err != nil {
			return err
		}
		if targetTime.Before(fromTime) {
			return syncerr.Validation("target %s precedes the newest operation log ending at %s", oplog.TruncateCommit(r.target), oplog.TruncateCommit(from))
		}
	}

	files, err := e.primary.Files("")
	if err != nil {
		return err
	}

	ops := oplog.NewOperationsForRepository(from, r.target)
	left := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fileOps, err := e.diffPrimaryFile(ctx, r, f, from)
		if err != nil {
			if isFatal(err) {
				return err
			}
			slog.Warn("primary document left out of operation log", "run", r.id, "path", f.Path, "error", err)
			r.summary.unprocessable(e.primary.Name, f.Path, err.Error())
			left++
			continue
		}
		if fileOps != nil && !fileOps.IsEmpty() {
			ops.Add(fileOps)
		}
	}

	if left > 0 {
		r.logWithheld = true
		slog.Warn("primary operation log not saved: documents were left out", "run", r.id,
			"from", oplog.TruncateCommit(from), "to", oplog.TruncateCommit(r.target), "documents", left)
		return nil
	}

	ref, err := e.store.Save(ops, e.now())
	if err != nil {
		return err
	}
	r.summary.PrimaryLog = ref.Name
	slog.Info("primary operation log created", "run", r.id, "name", ref.Name, "files", len(ops.Files), "operations", ops.OperationCount())
	return nil
}

// diffPrimaryFile computes the operations of one primary document between from and the
// target. A nil log means the document does not exist at the target.
func (e *Engine) diffPrimaryFile(ctx context.Context, r *run, f repository.File, from string) (*oplog.OperationsForFile, error) {
	after, ok, err := e.primaryDocAt(ctx, r, f, r.target)
	if err != nil || !ok {
		return nil, err
	}
	before, ok, err := e.primaryDocAt(ctx, r, f, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		before = &subtitle.Document{}
	}

	// clone: documents are shared through the run cache
	after = cloneDocument(after)
	before = cloneDocument(before)

	if err := e.completeTargetIDs(ctx, f, after); err != nil {
		return nil, err
	}
	if missingIDs(before.Subtitles) > 0 {
		adoptIDs(before, after)
		if n := missingIDs(before.Subtitles); n > 0 {
			return nil, syncerr.Validation("%d subtitles at %s have no persistent id", n, oplog.TruncateCommit(from))
		}
	}

	fileOps, err := e.differ.Compute(before.Subtitles, after.Subtitles)
	if err != nil {
		return nil, err
	}
	fileOps.ProductIdentityID = f.ProductIdentityID
	fileOps.Language = e.primary.Language
	return fileOps, nil
}

// completeTargetIDs fills in persistent ids missing at the target. Ids are taken from the
// working tree markers when the working tree holds the target content, otherwise drawn
// from the id generator and written to the working tree markers.
func (e *Engine) completeTargetIDs(ctx context.Context, f repository.File, doc *subtitle.Document) error {
	if missingIDs(doc.Subtitles) == 0 {
		return nil
	}

	if err := e.adoptWorkingTreeIDs(f, doc); err != nil {
		return err
	}

	n := missingIDs(doc.Subtitles)
	if n == 0 {
		return nil
	}
	if e.ids == nil {
		return syncerr.Validation("%d subtitles have no persistent id and no id generator is configured", n)
	}
	ids, err := e.ids.Generate(n)
	if err != nil {
		return err
	}
	for i := range doc.Subtitles {
		if doc.Subtitles[i].PersistentID == "" {
			doc.Subtitles[i].PersistentID, ids = ids[0], ids[1:]
		}
	}
	if err := e.primary.WriteMarkers(ctx, f, doc.Markers()); err != nil {
		return err
	}
	slog.Info("assigned persistent ids", "path", f.Path, "count", n)
	return nil
}

// adoptWorkingTreeIDs copies persistent ids from the primary working tree markers into doc.
// The working tree must hold the same text as doc.
func (e *Engine) adoptWorkingTreeIDs(f repository.File, doc *subtitle.Document) error {
	work, err := e.primary.ReadDocument(f)
	if err != nil {
		return err
	}
	if work.Content() != doc.Content() {
		return syncerr.Validation("subtitles without persistent ids and the working tree differs from the target commit")
	}
	adoptIDs(doc, work)
	return nil
}

// primaryDocAt reads a primary document as of commit. ok is false when it did not exist.
func (e *Engine) primaryDocAt(ctx context.Context, r *run, f repository.File, commit string) (*subtitle.Document, bool, error) {
	key := oplog.TruncateCommit(commit) + ":" + f.Path
	doc, err := r.docs.Get(key, func() (*subtitle.Document, error) {
		content, ok, err := r.history.ContentsAsOf(ctx, f.Path, commit)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		markers, hasMarkers, err := r.history.ContentsAsOf(ctx, f.MarkersPath(), commit)
		if err != nil {
			return nil, err
		}
		doc, err := subtitle.ParseDocument(content, markers, hasMarkers)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", f.Path, oplog.TruncateCommit(commit), err)
		}
		return doc, nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

func cloneDocument(d *subtitle.Document) *subtitle.Document {
	return &subtitle.Document{Head: d.Head, Subtitles: append([]subtitle.Subtitle(nil), d.Subtitles...)}
}

func missingIDs(subs []subtitle.Subtitle) int {
	n := 0
	for _, s := range subs {
		if s.PersistentID == "" {
			n++
		}
	}
	return n
}

// adoptIDs copies persistent ids from donor into the blank markers of doc when both hold
// the same text, and so the same subtitles.
func adoptIDs(doc, donor *subtitle.Document) {
	if len(doc.Subtitles) != len(donor.Subtitles) || doc.Content() != donor.Content() {
		return
	}
	for i := range doc.Subtitles {
		if doc.Subtitles[i].PersistentID == "" {
			doc.Subtitles[i].PersistentID = donor.Subtitles[i].PersistentID
		}
	}
}

// isFatal reports errors that end the run instead of a single document.
func isFatal(err error) bool {
	return errors.Is(err, idgen.ErrIDSpaceExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
