// Package repository maps a primary or foreign content repository on disk: its
// documents, their subtitle marker sidecars and the export/import artifacts left by the
// subtitle tooling.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/imazen/repositext-sub003/internal/utils"
	"github.com/spf13/afero"
)

// DefaultContentGlob matches content documents relative to a repository root.
const DefaultContentGlob = "content/**/*.at"

// Sidecar suffixes, appended to the document path without its extension.
const (
	MarkersSuffix = ".subtitle_markers.csv"
	ExportSuffix  = ".subtitle_export"
	ImportSuffix  = ".subtitle_import"
)

var pidRe = regexp.MustCompile(`_(\d+)\.[^./]+$`)

// File is one content document of a repository.
type File struct {
	// Path is relative to the repository root, slash separated.
	Path              string
	ProductIdentityID string
}

func (f File) base() string {
	return strings.TrimSuffix(f.Path, path.Ext(f.Path))
}

// MarkersPath is the root relative path of the subtitle markers sidecar.
func (f File) MarkersPath() string { return f.base() + MarkersSuffix }

// ExportPath is the root relative path of the subtitle export artifact.
func (f File) ExportPath() string { return f.base() + ExportSuffix }

// ImportPath is the root relative path of the subtitle import artifact.
func (f File) ImportPath() string { return f.base() + ImportSuffix }

// ProductIdentityID extracts the product identity id from a document file name, which
// ends in _<digits>.<ext>.
func ProductIdentityID(p string) (string, bool) {
	m := pidRe.FindStringSubmatch(path.Base(p))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Artifacts are the modification times of a document's subtitle export and import
// sidecars. A zero time means the artifact does not exist.
type Artifacts struct {
	Exported time.Time
	Imported time.Time
}

// Any reports whether either artifact exists.
func (a Artifacts) Any() bool {
	return !a.Exported.IsZero() || !a.Imported.IsZero()
}

// PendingImport reports whether subtitles were exported and the result not yet imported.
func (a Artifacts) PendingImport() bool {
	return !a.Exported.IsZero() && (a.Imported.IsZero() || a.Exported.After(a.Imported))
}

// Latest returns the later of both modification times.
func (a Artifacts) Latest() time.Time {
	if a.Imported.After(a.Exported) {
		return a.Imported
	}
	return a.Exported
}

// Option configures a Repository.
type Option func(*Repository)

// AsPrimary marks the repository as the primary language repository.
func AsPrimary() Option {
	return func(r *Repository) {
		r.Primary = true
	}
}

// WithContentGlob overrides DefaultContentGlob.
func WithContentGlob(glob string) Option {
	return func(r *Repository) {
		if glob != "" {
			r.contentGlob = glob
		}
	}
}

// WithBackOff sets the retry policy for writes.
func WithBackOff(policy func() backoff.BackOff) Option {
	return func(r *Repository) {
		r.policy = policy
	}
}

// Repository is a content repository checked out at Root.
type Repository struct {
	Name     string
	Language string
	Root     string
	Primary  bool

	fs          afero.Fs
	contentGlob string
	ignore      *IgnoreList
	policy      func() backoff.BackOff
}

// New returns the repository checked out at root on fs. Documents of the repository are
// named after its language code.
func New(fs afero.Fs, name, language, root string, opts ...Option) (*Repository, error) {
	r := &Repository{
		Name:        name,
		Language:    language,
		Root:        root,
		fs:          fs,
		contentGlob: DefaultContentGlob,
		policy:      syncerr.DefaultBackOff,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.Name == "" {
		return nil, errors.New("repository name is required")
	}
	if r.Language == "" {
		return nil, fmt.Errorf("repository %s: language is required", r.Name)
	}
	if !doublestar.ValidatePattern(r.contentGlob) {
		return nil, fmt.Errorf("repository %s: invalid content glob %q", r.Name, r.contentGlob)
	}
	if info, err := fs.Stat(root); err != nil || !info.IsDir() {
		return nil, syncerr.NotFound("repository %s: root %s is not a directory", r.Name, root)
	}

	r.ignore = LoadIgnoreList(fs, root)
	return r, nil
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Language)
}

// Files returns the documents of the repository in path order. selector, when not empty,
// is a doublestar pattern further restricting the root relative paths.
func (r *Repository) Files(selector string) ([]File, error) {
	if selector != "" && !doublestar.ValidatePattern(selector) {
		return nil, syncerr.Validation("invalid file selector %q", selector)
	}

	var files []File
	err := afero.Walk(r.fs, r.Root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.Root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if r.ignore.ShouldIgnore(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if ok, _ := doublestar.Match(r.contentGlob, rel); !ok {
			return nil
		}
		if selector != "" {
			if ok, _ := doublestar.Match(selector, rel); !ok {
				return nil
			}
		}
		if !strings.HasPrefix(path.Base(rel), r.Language) {
			return nil
		}
		pid, ok := ProductIdentityID(rel)
		if !ok {
			slog.Debug("skipping document without product identity id", "repo", r.Name, "path", rel)
			return nil
		}
		files = append(files, File{Path: rel, ProductIdentityID: pid})
		return nil
	})
	if err != nil {
		return nil, syncerr.TransientIO(err, "discover documents of %s", r.Name)
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// FilesByProductIdentityID indexes the documents of the repository. When two documents
// share an id the first in path order wins.
func (r *Repository) FilesByProductIdentityID() (map[string]File, error) {
	files, err := r.Files("")
	if err != nil {
		return nil, err
	}
	byPID := make(map[string]File, len(files))
	for _, f := range files {
		if prev, ok := byPID[f.ProductIdentityID]; ok {
			slog.Warn("duplicate product identity id", "repo", r.Name, "pid", f.ProductIdentityID, "kept", prev.Path, "ignored", f.Path)
			continue
		}
		byPID[f.ProductIdentityID] = f
	}
	return byPID, nil
}

func (r *Repository) abs(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

// ReadFile reads a root relative path.
func (r *Repository) ReadFile(rel string) ([]byte, bool, error) {
	data, err := afero.ReadFile(r.fs, r.abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, syncerr.TransientIO(err, "read %s", rel)
	}
	return data, true, nil
}

// ReadDocument reads a document and its markers from the working tree.
func (r *Repository) ReadDocument(f File) (*subtitle.Document, error) {
	content, ok, err := r.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, syncerr.NotFound("document %s does not exist in %s", f.Path, r.Name)
	}
	markers, hasMarkers, err := r.ReadFile(f.MarkersPath())
	if err != nil {
		return nil, err
	}
	doc, err := subtitle.ParseDocument(content, markers, hasMarkers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return doc, nil
}

// WriteDocument replaces the content and markers of a document. Both files are staged
// before either is renamed into place, and cancellation is only observed before the
// renames; transient failures are retried.
func (r *Repository) WriteDocument(ctx context.Context, f File, doc *subtitle.Document) error {
	markers, err := subtitle.FormatMarkers(doc.Markers())
	if err != nil {
		return err
	}
	return r.writeFiles(ctx,
		pendingFile{rel: f.MarkersPath(), data: markers},
		pendingFile{rel: f.Path, data: []byte(doc.Content())},
	)
}

// WriteMarkers replaces the markers sidecar of a document.
func (r *Repository) WriteMarkers(ctx context.Context, f File, subs []subtitle.Subtitle) error {
	markers, err := subtitle.FormatMarkers(subs)
	if err != nil {
		return err
	}
	return r.writeFiles(ctx, pendingFile{rel: f.MarkersPath(), data: markers})
}

type pendingFile struct {
	rel  string
	data []byte
}

// writeFiles stages every file, then renames them in order.
func (r *Repository) writeFiles(ctx context.Context, files ...pendingFile) error {
	return syncerr.RetryErr(ctx, r.policy(), func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		staged := make([]string, 0, len(files))
		discard := func() {
			for _, tmp := range staged {
				r.fs.Remove(tmp)
			}
		}
		for _, f := range files {
			tmp, err := utils.StageFile(r.fs, r.abs(f.rel), f.data, 0o644)
			if err != nil {
				discard()
				return syncerr.TransientIO(err, "write %s", f.rel)
			}
			staged = append(staged, tmp)
		}

		for i, f := range files {
			if err := r.fs.Rename(staged[i], r.abs(f.rel)); err != nil {
				staged = staged[i:]
				discard()
				return syncerr.TransientIO(err, "rename %s", f.rel)
			}
		}
		return nil
	})
}

// Artifacts returns the export/import sidecar times of a document.
func (r *Repository) Artifacts(f File) (Artifacts, error) {
	var a Artifacts
	for _, side := range []struct {
		rel string
		t   *time.Time
	}{
		{f.ExportPath(), &a.Exported},
		{f.ImportPath(), &a.Imported},
	} {
		info, err := r.fs.Stat(r.abs(side.rel))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Artifacts{}, syncerr.TransientIO(err, "stat %s", side.rel)
		}
		*side.t = info.ModTime()
	}
	return a, nil
}
