package subsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/repository"
	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/imazen/repositext-sub003/internal/syncmeta"
)

const reasonPendingImport = "subtitle export is waiting for its import"

// syncFile brings one foreign file to the target commit. It never returns an error: the
// outcome, including failures, is in the result.
func (e *Engine) syncFile(ctx context.Context, r *run, f Foreign, file repository.File) FileResult {
	res := FileResult{Repository: f.Repo.Name, Path: file.Path}
	if err := e.syncFileSteps(ctx, r, f, file, &res); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		logFailure(r, f.Repo.Name, file.Path, err)
	}
	return res
}

func (e *Engine) syncFileSteps(ctx context.Context, r *run, f Foreign, file repository.File, res *FileResult) error {
	primaryFile, ok := r.primaryFiles[file.ProductIdentityID]
	if !ok {
		return syncerr.NotFound("no primary document with product identity id %s", file.ProductIdentityID)
	}

	doc, err := f.Repo.ReadDocument(file)
	if err != nil {
		return err
	}
	meta, err := f.Journal.Get(file.Path)
	if err != nil {
		return err
	}

	start, pending, err := e.resolveStart(ctx, r, f, file, primaryFile, doc, meta, res)
	if err != nil {
		return err
	}
	if pending {
		res.Outcome = OutcomeSkipped
		res.Reason = reasonPendingImport
		slog.Info("file skipped", "run", r.id, "repo", f.Repo.Name, "path", file.Path, "reason", res.Reason)
		return nil
	}
	res.StartCommit = start

	if n := missingIDs(doc.Subtitles); n > 0 {
		return syncerr.Validation("%d subtitles have no persistent id", n)
	}

	logs, err := e.applicableLogs(ctx, r, primaryFile, start)
	if err != nil {
		return err
	}

	for _, l := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if meta, err = e.applyLog(ctx, r, f, file, primaryFile, doc, l); err != nil {
			return fmt.Errorf("log %s..%s: %w", oplog.TruncateCommit(l.FromCommit), oplog.TruncateCommit(l.ToCommit), err)
		}
		res.LogsApplied++
	}

	if meta == nil {
		// nothing to replay: remember where this file stands for the next run
		meta, err = f.Journal.Record(file.Path, syncmeta.Update{
			LastSyncedCommit: r.target,
			SubtitlesHash:    subtitle.Fingerprint(doc.Subtitles),
			At:               e.now(),
		})
		if err != nil {
			return err
		}
	}

	res.Outcome = OutcomeSynced
	if res.Autosplit {
		res.Outcome = OutcomeAutosplit
	}
	res.NeedsReview = meta.NeedsReview()
	slog.Debug("file synced", "run", r.id, "repo", f.Repo.Name, "path", file.Path, "start", oplog.TruncateCommit(start), "logs", res.LogsApplied, "review", len(meta.SubtitlesToReview))
	return nil
}

// resolveStart determines the commit the foreign file's subtitles correspond to. pending
// is true when the file is waiting for a subtitle import and must not be touched.
func (e *Engine) resolveStart(ctx context.Context, r *run, f Foreign, file, primaryFile repository.File, doc *subtitle.Document, meta *syncmeta.Metadata, res *FileResult) (string, bool, error) {
	if meta != nil && meta.LastSyncedCommit != "" {
		if meta.SubtitlesHash != "" && meta.SubtitlesHash != subtitle.Fingerprint(doc.Subtitles) {
			return "", false, syncerr.Validation("sync metadata is stale: subtitles changed since %s", oplog.TruncateCommit(meta.LastSyncedCommit))
		}
		return meta.LastSyncedCommit, false, nil
	}

	artifacts, err := f.Repo.Artifacts(file)
	if err != nil {
		return "", false, err
	}
	if artifacts.PendingImport() {
		return "", true, nil
	}

	if !artifacts.Any() {
		if len(doc.Subtitles) == 0 {
			res.Autosplit = true
			return r.target, false, nil
		}
		return "", false, syncerr.NotFound("no sync metadata and no subtitle import to derive the start commit from")
	}

	start, err := e.commitAt(ctx, r, artifacts)
	if err != nil {
		return "", false, err
	}

	primaryDoc, ok, err := e.primaryDocAt(ctx, r, primaryFile, start)
	if err != nil {
		return "", false, err
	}
	primaryCount := 0
	if ok {
		primaryCount = len(primaryDoc.Subtitles)
	}
	if primaryCount != len(doc.Subtitles) {
		return "", false, syncerr.Validation("primary has %d subtitles at %s but the foreign file has %d", primaryCount, oplog.TruncateCommit(start), len(doc.Subtitles))
	}
	return start, false, nil
}

// commitAt maps the time of the latest subtitle import to the primary commit current at
// that time, never earlier than the start of the first operation log.
func (e *Engine) commitAt(ctx context.Context, r *run, artifacts repository.Artifacts) (string, error) {
	var earliest string
	if r.earliest != nil {
		var err error
		if earliest, err = r.history.ResolveCommit(ctx, r.earliest.From); err != nil {
			return "", err
		}
	}

	commit, err := r.history.LatestCommitAffecting(ctx, "", artifacts.Latest())
	if err != nil {
		if errors.Is(err, syncerr.ErrNotFound) && earliest != "" {
			return earliest, nil
		}
		return "", err
	}
	if earliest == "" {
		return commit, nil
	}

	commitTime, err := r.history.CommitTime(ctx, commit)
	if err != nil {
		return "", err
	}
	earliestTime, err := r.history.CommitTime(ctx, earliest)
	if err != nil {
		return "", err
	}
	if commitTime.Before(earliestTime) {
		return earliest, nil
	}
	return commit, nil
}

// applicableLogs returns the logs that take the document from start to the target: none
// when start is the target, the persisted chain when start is a log boundary and the chain
// reaches the target, and a single computed log otherwise.
func (e *Engine) applicableLogs(ctx context.Context, r *run, primaryFile repository.File, start string) ([]*oplog.OperationsForFile, error) {
	if oplog.SameCommit(start, r.target) {
		return nil, nil
	}

	isBoundary, err := e.store.IsBoundary(start)
	if err != nil {
		return nil, err
	}
	if !isBoundary || r.logWithheld {
		l, err := e.computedLog(ctx, r, primaryFile, start)
		if err != nil {
			return nil, err
		}
		return []*oplog.OperationsForFile{l}, nil
	}

	chain, err := e.store.BoundaryChain(start)
	if err != nil {
		return nil, err
	}
	end := slices.Index(chain, oplog.TruncateCommit(r.target))
	if end < 0 {
		return nil, syncerr.NotFound("target %s is not reachable from %s through operation logs", oplog.TruncateCommit(r.target), oplog.TruncateCommit(start))
	}

	logs := make([]*oplog.OperationsForFile, 0, end)
	for i := 0; i < end; i++ {
		l, err := e.persistedLog(r, chain[i], chain[i+1], primaryFile.ProductIdentityID)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (e *Engine) persistedLog(r *run, from, to, pid string) (*oplog.OperationsForFile, error) {
	key := from + ":" + to + ":" + pid
	return r.fileLogs.Get(key, func() (*oplog.OperationsForFile, error) {
		ops, err := r.repoLogs.Get(from+":"+to, func() (*oplog.OperationsForRepository, error) {
			return e.store.Load(from, to)
		})
		if err != nil {
			return nil, err
		}
		l, _ := ops.File(pid)
		return l, nil
	})
}

// computedLog diffs the primary document between start and the target. It is cached for
// the run and never persisted.
func (e *Engine) computedLog(ctx context.Context, r *run, primaryFile repository.File, start string) (*oplog.OperationsForFile, error) {
	key := "computed:" + oplog.TruncateCommit(start) + ":" + oplog.TruncateCommit(r.target) + ":" + primaryFile.ProductIdentityID
	return r.fileLogs.Get(key, func() (*oplog.OperationsForFile, error) {
		after, ok, err := e.primaryDocAt(ctx, r, primaryFile, r.target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, syncerr.NotFound("primary document %s does not exist at %s", primaryFile.Path, oplog.TruncateCommit(r.target))
		}
		before, ok, err := e.primaryDocAt(ctx, r, primaryFile, start)
		if err != nil {
			return nil, err
		}
		if !ok {
			before = &subtitle.Document{}
		}

		before, after = cloneDocument(before), cloneDocument(after)
		adoptIDs(before, after)
		if missingIDs(after.Subtitles) > 0 {
			// ids drawn for the target live in the working tree markers until committed
			if err := e.adoptWorkingTreeIDs(primaryFile, after); err != nil {
				return nil, err
			}
		}
		for _, d := range []*subtitle.Document{before, after} {
			if n := missingIDs(d.Subtitles); n > 0 {
				return nil, syncerr.Validation("%d primary subtitles have no persistent id", n)
			}
		}

		l, err := e.differ.Compute(before.Subtitles, after.Subtitles)
		if err != nil {
			return nil, err
		}
		l.ProductIdentityID = primaryFile.ProductIdentityID
		l.Language = e.primary.Language
		l.FromCommit = start
		l.ToCommit = r.target
		slog.Debug("computed operation log", "run", r.id, "pid", l.ProductIdentityID, "from", oplog.TruncateCommit(start), "operations", len(l.Operations))
		return l, nil
	})
}

// applyLog replays one log onto the foreign document, writes it and then its metadata.
func (e *Engine) applyLog(ctx context.Context, r *run, f Foreign, file, primaryFile repository.File, doc *subtitle.Document, l *oplog.OperationsForFile) (*syncmeta.Metadata, error) {
	update := syncmeta.Update{LastSyncedCommit: l.ToCommit, At: e.now()}

	if !l.IsEmpty() {
		var to []subtitle.Subtitle
		toDoc, ok, err := e.primaryDocAt(ctx, r, primaryFile, l.ToCommit)
		if err != nil {
			return nil, err
		}
		if ok {
			to = toDoc.Subtitles
		}

		result, err := l.ApplyToContent(doc.Subtitles, to)
		if err != nil {
			return nil, err
		}

		before := mapset.NewThreadUnsafeSet(subtitle.PersistentIDs(doc.Subtitles)...)
		after := mapset.NewThreadUnsafeSet(subtitle.PersistentIDs(result.Subtitles)...)
		update.Dropped = before.Difference(after).ToSlice()
		update.Review = result.Review

		doc.Subtitles = result.Subtitles
		if err := f.Repo.WriteDocument(ctx, file, doc); err != nil {
			return nil, err
		}
		slog.Debug("log replayed", "run", r.id, "path", file.Path, "inserted", result.Inserted, "removed", result.Removed, "moved", result.Moved)
	}

	update.SubtitlesHash = subtitle.Fingerprint(doc.Subtitles)
	return f.Journal.Record(file.Path, update)
}
