package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/imazen/repositext-sub003/internal/config"
	"github.com/imazen/repositext-sub003/internal/idgen"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/repository"
	"github.com/imazen/repositext-sub003/internal/snapshot"
	"github.com/imazen/repositext-sub003/internal/subsync"
	"github.com/imazen/repositext-sub003/internal/syncmeta"
	"github.com/spf13/afero"
)

// workspace holds the repositories, stores and journals named by the config.
type workspace struct {
	cfg     *config.Config
	primary *repository.Repository
	foreign []subsync.Foreign
	store   *oplog.Store
	ids     *idgen.Generator
}

func openWorkspace(cfg *config.Config) (*workspace, error) {
	fs := afero.NewOsFs()

	primary, err := repository.New(fs, cfg.Primary.Name, cfg.Primary.Language, cfg.Primary.Root,
		repository.AsPrimary(),
		repository.WithContentGlob(cfg.ContentGlob),
	)
	if err != nil {
		return nil, err
	}

	ids, err := idgen.New(fs, cfg.IDInventory,
		idgen.WithLength(cfg.IDLength),
		idgen.WithLockFile(filepath.Join(cfg.StateDir, "locks", "ids.lock")),
	)
	if err != nil {
		return nil, fmt.Errorf("id generator: %w", err)
	}

	w := &workspace{
		cfg:     cfg,
		primary: primary,
		store:   oplog.NewStore(fs, cfg.LogsDir, oplog.WithLockFile(filepath.Join(cfg.StateDir, "locks", "logs.lock"))),
		ids:     ids,
	}

	for _, r := range cfg.Foreign {
		repo, err := repository.New(fs, r.Name, r.Language, r.Root, repository.WithContentGlob(cfg.ContentGlob))
		if err != nil {
			w.Close()
			return nil, err
		}
		journal, err := syncmeta.Open(r.Journal)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("open journal of %s: %w", r.Name, err)
		}
		w.foreign = append(w.foreign, subsync.Foreign{Repo: repo, Journal: journal})
	}
	return w, nil
}

func (w *workspace) engine() (*subsync.Engine, error) {
	return subsync.New(w.primary, snapshot.NewGit(w.cfg.Primary.Root), w.store, w.foreign,
		subsync.WithIDGenerator(w.ids),
		subsync.WithWorkers(w.cfg.Workers),
	)
}

// foreignRepo returns the foreign repository called name.
func (w *workspace) foreignRepo(name string) (subsync.Foreign, error) {
	for _, f := range w.foreign {
		if f.Repo.Name == name {
			return f, nil
		}
	}
	return subsync.Foreign{}, fmt.Errorf("no foreign repository named %q", name)
}

func (w *workspace) Close() error {
	var errs []error
	for _, f := range w.foreign {
		errs = append(errs, f.Journal.Close())
	}
	return errors.Join(errs...)
}
