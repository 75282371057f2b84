// Package subsync propagates structural subtitle changes of the primary repository to
// every foreign repository by replaying persisted operation logs.
package subsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/imazen/repositext-sub003/internal/idgen"
	"github.com/imazen/repositext-sub003/internal/memo"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/repository"
	"github.com/imazen/repositext-sub003/internal/snapshot"
	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/imazen/repositext-sub003/internal/syncmeta"
	"golang.org/x/sync/errgroup"
)

// Options select what a run syncs.
type Options struct {
	// FileSelector is a doublestar pattern over foreign document paths. Empty means all.
	FileSelector string
	// FromCommit is where the first primary log starts when no log exists yet.
	FromCommit string
	// ToCommit overrides the target commit, which defaults to the primary HEAD.
	ToCommit string
}

// Foreign is a foreign repository and the journal holding its sync metadata.
type Foreign struct {
	Repo    *repository.Repository
	Journal *syncmeta.Journal
}

// Option configures an Engine.
type Option func(*Engine)

// WithDiffer replaces the default oplog.StidDiffer.
func WithDiffer(d oplog.Differ) Option {
	return func(e *Engine) {
		e.differ = d
	}
}

// WithIDGenerator enables assigning ids to primary subtitles that have none.
func WithIDGenerator(g *idgen.Generator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithWorkers bounds the number of foreign files synced concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCachedSnapshotOptions configures the per run snapshot cache.
func WithCachedSnapshotOptions(opts ...snapshot.CachedOption) Option {
	return func(e *Engine) {
		e.snapshotOpts = opts
	}
}

// Engine runs subtitle syncs. It holds no state between runs.
type Engine struct {
	primary *repository.Repository
	history snapshot.Accessor
	store   *oplog.Store
	foreign []Foreign

	differ       oplog.Differ
	ids          *idgen.Generator
	workers      int
	now          func() time.Time
	snapshotOpts []snapshot.CachedOption
}

// New returns an engine syncing foreign from primary, whose history is read through
// history and whose logs live in store.
func New(primary *repository.Repository, history snapshot.Accessor, store *oplog.Store, foreign []Foreign, opts ...Option) (*Engine, error) {
	if primary == nil || history == nil || store == nil {
		return nil, errors.New("primary repository, history and log store are required")
	}
	for _, f := range foreign {
		if f.Repo == nil || f.Journal == nil {
			return nil, errors.New("foreign repository and journal are required")
		}
		if f.Repo.Primary {
			return nil, fmt.Errorf("repository %s is the primary repository", f.Repo.Name)
		}
	}

	e := &Engine{
		primary: primary,
		history: history,
		store:   store,
		foreign: foreign,
		differ:  oplog.StidDiffer{},
		workers: runtime.NumCPU(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// run is the state of one Sync call. Its caches are keyed by truncated commit ids.
type run struct {
	id      string
	opts    Options
	target  string
	history snapshot.Accessor
	summary *Summary

	primaryFiles map[string]repository.File
	earliest     *oplog.LogRef
	// logWithheld is set when the primary log up to the target was not saved.
	logWithheld bool

	repoLogs *memo.Cache[*oplog.OperationsForRepository]
	fileLogs *memo.Cache[*oplog.OperationsForFile]
	docs     *memo.Cache[*subtitle.Document]
}

// Sync runs ComputeTarget, SyncPrimaryIfNeeded, the sync of every foreign repository and
// Finalize. Per-file failures are reported in the summary, not as an error.
func (e *Engine) Sync(ctx context.Context, opts Options) (*Summary, error) {
	r := &run{
		id:       uuid.NewString(),
		opts:     opts,
		history:  snapshot.NewCached(e.history, e.snapshotOpts...),
		repoLogs: memo.New[*oplog.OperationsForRepository](256, 0),
		fileLogs: memo.New[*oplog.OperationsForFile](4096, 0),
		docs:     memo.New[*subtitle.Document](4096, 0),
	}
	r.summary = &Summary{RunID: r.id}
	log := slog.With("run", r.id)
	start := e.now()

	if err := e.computeTarget(ctx, r); err != nil {
		return r.summary, fmt.Errorf("compute target: %w", err)
	}
	log.Info("sync started", "target", oplog.TruncateCommit(r.target), "foreign", len(e.foreign))

	if err := e.syncPrimaryIfNeeded(ctx, r); err != nil {
		return r.summary, fmt.Errorf("sync primary: %w", err)
	}

	var err error
	if r.primaryFiles, err = e.primary.FilesByProductIdentityID(); err != nil {
		return r.summary, fmt.Errorf("list primary documents: %w", err)
	}
	if r.earliest, err = e.store.Earliest(); err != nil {
		return r.summary, fmt.Errorf("list operation logs: %w", err)
	}

	for _, f := range e.foreign {
		if err := e.syncForeignRepository(ctx, r, f); err != nil {
			r.summary.sort()
			return r.summary, err
		}
	}

	e.finalize(r, start)
	return r.summary, nil
}

// computeTarget resolves the commit every foreign file is synced to.
func (e *Engine) computeTarget(ctx context.Context, r *run) error {
	rev := r.opts.ToCommit
	if rev == "" {
		rev = "HEAD"
	}
	target, err := r.history.ResolveCommit(ctx, rev)
	if err != nil {
		return err
	}
	r.target = target
	r.summary.TargetCommit = target
	return nil
}

func (e *Engine) syncForeignRepository(ctx context.Context, r *run, f Foreign) error {
	files, err := f.Repo.Files(r.opts.FileSelector)
	if err != nil {
		return fmt.Errorf("list documents of %s: %w", f.Repo.Name, err)
	}
	slog.Info("syncing repository", "run", r.id, "repo", f.Repo.Name, "files", len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.syncFile(gctx, r, f, file)
			r.summary.add(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Engine) finalize(r *run, start time.Time) {
	r.summary.sort()
	slog.Info("sync finished",
		"run", r.id,
		"target", oplog.TruncateCommit(r.target),
		"synced", r.summary.FilesSynced,
		"autosplit", r.summary.FilesAutosplit,
		"skipped", r.summary.FilesSkipped,
		"review", r.summary.FilesNeedingReview,
		"failed", r.summary.FilesFailed,
		"duration", e.now().Sub(start).Round(time.Millisecond),
	)
}

// logFailure logs a per-file failure. Consistency errors point at a defect in the logs or
// the replay and are logged as such.
func logFailure(r *run, repo, path string, err error) {
	if errors.Is(err, syncerr.ErrConsistency) {
		slog.Error("file sync failed", "run", r.id, "repo", repo, "path", path, "bug", true, "error", err)
		return
	}
	slog.Warn("file sync failed", "run", r.id, "repo", repo, "path", path, "kind", kindName(err), "error", err)
}

func kindName(err error) string {
	if kind := syncerr.Kind(err); kind != nil {
		return kind.Error()
	}
	return "other"
}
