// Package syncmeta persists per-file sync metadata of foreign documents.
package syncmeta

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/goccy/go-json"
	"github.com/imazen/repositext-sub003/internal/db"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS st_sync_metadata (
    path TEXT PRIMARY KEY,
    last_synced_commit TEXT NOT NULL,
    subtitles_to_review TEXT NOT NULL DEFAULT '{}', -- JSON object stid -> reason
    subtitles_hash TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_st_sync_metadata_commit ON st_sync_metadata(last_synced_commit);
`

// Metadata is the sync state of one foreign file.
type Metadata struct {
	Path              string
	LastSyncedCommit  string
	SubtitlesToReview map[string]string
	// SubtitlesHash fingerprints the subtitle structure written with LastSyncedCommit.
	SubtitlesHash string
	UpdatedAt     time.Time
}

// NeedsReview reports whether any subtitle is flagged.
func (m *Metadata) NeedsReview() bool {
	return len(m.SubtitlesToReview) > 0
}

// Update is the result of syncing one file to one more log.
type Update struct {
	LastSyncedCommit string
	// Review flags are merged into the existing ones.
	Review map[string]string
	// Dropped lists persistent ids that no longer exist; their flags are removed.
	Dropped       []string
	SubtitlesHash string
	At            time.Time
}

type row struct {
	Path              string `db:"path"`
	LastSyncedCommit  string `db:"last_synced_commit"`
	SubtitlesToReview string `db:"subtitles_to_review"`
	SubtitlesHash     string `db:"subtitles_hash"`
	UpdatedAt         string `db:"updated_at"`
}

// Journal stores Metadata in SQLite, keyed by the file path relative to its repository.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

// Open creates or opens the journal at dbPath. Use db.MemoryPath for a throwaway journal.
func Open(dbPath string) (*Journal, error) {
	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open sync metadata journal: %w", err)
	}
	return &Journal{db: conn, dbPath: dbPath}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("close sync metadata journal", "path", j.dbPath, "error", err)
		return err
	}
	return nil
}

// Get returns the metadata of path, or nil when the file was never synced.
func (j *Journal) Get(path string) (*Metadata, error) {
	return get(j.db, path)
}

// Record applies u to the metadata of path in one transaction and returns the result.
func (j *Journal) Record(path string, u Update) (m *Metadata, err error) {
	if u.LastSyncedCommit == "" {
		return nil, fmt.Errorf("record %s: last synced commit is required", path)
	}

	tx, err := j.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	m, err = get(tx, path)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &Metadata{Path: path, SubtitlesToReview: make(map[string]string)}
	}

	maps.Copy(m.SubtitlesToReview, u.Review)
	for _, stid := range u.Dropped {
		delete(m.SubtitlesToReview, stid)
	}
	m.LastSyncedCommit = u.LastSyncedCommit
	m.SubtitlesHash = u.SubtitlesHash
	m.UpdatedAt = u.At.UTC().Truncate(time.Second)
	if u.At.IsZero() {
		m.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	}

	r, err := toRow(m)
	if err != nil {
		return nil, err
	}
	_, err = tx.NamedExec(`INSERT OR REPLACE INTO st_sync_metadata
		(path, last_synced_commit, subtitles_to_review, subtitles_hash, updated_at)
		VALUES (:path, :last_synced_commit, :subtitles_to_review, :subtitles_hash, :updated_at)`, r)
	if err != nil {
		return nil, fmt.Errorf("failed to set metadata for %s: %w", path, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	slog.Debug("sync metadata recorded", "path", path, "commit", m.LastSyncedCommit, "review", len(m.SubtitlesToReview))
	return m, nil
}

// ClearReview removes review flags of path. With no stids every flag is removed.
func (j *Journal) ClearReview(path string, stids ...string) error {
	m, err := j.Get(path)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if len(stids) == 0 {
		clear(m.SubtitlesToReview)
	}
	for _, stid := range stids {
		delete(m.SubtitlesToReview, stid)
	}

	r, err := toRow(m)
	if err != nil {
		return err
	}
	if _, err := j.db.Exec("UPDATE st_sync_metadata SET subtitles_to_review = ? WHERE path = ?", r.SubtitlesToReview, path); err != nil {
		return fmt.Errorf("failed to clear review flags of %s: %w", path, err)
	}
	return nil
}

// All returns the metadata of every synced file, ordered by path.
func (j *Journal) All() ([]*Metadata, error) {
	var rows []row
	err := j.db.Select(&rows, "SELECT path, last_synced_commit, subtitles_to_review, subtitles_hash, updated_at FROM st_sync_metadata ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}

	out := make([]*Metadata, 0, len(rows))
	for _, r := range rows {
		m, err := fromRow(r)
		if err != nil {
			slog.Error("skipping corrupt sync metadata", "path", r.Path, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Delete removes the metadata of path.
func (j *Journal) Delete(path string) error {
	if _, err := j.db.Exec("DELETE FROM st_sync_metadata WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete metadata of %s: %w", path, err)
	}
	return nil
}

func get(q sqlx.Queryer, path string) (*Metadata, error) {
	var r row
	err := sqlx.Get(q, &r, "SELECT path, last_synced_commit, subtitles_to_review, subtitles_hash, updated_at FROM st_sync_metadata WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query metadata of %s: %w", path, err)
	}
	return fromRow(r)
}

func toRow(m *Metadata) (row, error) {
	review := m.SubtitlesToReview
	if review == nil {
		review = map[string]string{}
	}
	data, err := json.Marshal(review)
	if err != nil {
		return row{}, fmt.Errorf("encode review flags of %s: %w", m.Path, err)
	}
	return row{
		Path:              m.Path,
		LastSyncedCommit:  m.LastSyncedCommit,
		SubtitlesToReview: string(data),
		SubtitlesHash:     m.SubtitlesHash,
		UpdatedAt:         m.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func fromRow(r row) (*Metadata, error) {
	updatedAt, err := time.Parse(time.RFC3339, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored timestamp for %s: %w", r.Path, err)
	}
	review := make(map[string]string)
	if r.SubtitlesToReview != "" {
		if err := json.Unmarshal([]byte(r.SubtitlesToReview), &review); err != nil {
			return nil, fmt.Errorf("decode review flags of %s: %w", r.Path, err)
		}
	}
	return &Metadata{
		Path:              r.Path,
		LastSyncedCommit:  r.LastSyncedCommit,
		SubtitlesToReview: review,
		SubtitlesHash:     r.SubtitlesHash,
		UpdatedAt:         updatedAt,
	}, nil
}
