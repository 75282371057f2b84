package repository

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFileName is the per-repository list of content paths the sync leaves alone.
const IgnoreFileName = ".stsyncignore"

var defaultIgnoreLines = []string{
	// vcs
	".git",
	// editors and os
	".vscode",
	".idea",
	".DS_Store",
	// our own temp files
	".*.tmp",
	"*.tmp",
}

// IgnoreList decides which repository paths are excluded from sync.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

// LoadIgnoreList reads the ignore file at the root of a repository, if any.
func LoadIgnoreList(fs afero.Fs, root string) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)
	path := filepath.Join(root, IgnoreFileName)

	rules := 0
	if data, err := afero.ReadFile(fs, path); err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines = append(lines, line)
				rules++
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("error reading ignore file", "path", path, "error", err)
		} else {
			slog.Debug("loaded ignore file", "path", path, "rules", rules)
		}
	}

	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...)}
}

// ShouldIgnore reports whether the slash separated, root relative path is excluded.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	return l.ignore.MatchesPath(relPath)
}
