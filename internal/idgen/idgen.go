// Package idgen issues new persistent subtitle ids that are unique across an inventory
// of every id ever issued.
package idgen

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/imazen/repositext-sub003/internal/utils"
	"github.com/spf13/afero"
)

const (
	DefaultLength      = 7
	DefaultMaxAttempts = 100
)

// ErrIDSpaceExhausted is returned when no unused id could be drawn within the attempt
// budget. It is fatal: retrying will not help.
var ErrIDSpaceExhausted = errors.New("id space exhausted")

// RandomFunc draws a random string of length n from alphabet.
type RandomFunc func(alphabet string, n int) (string, error)

// Option configures a Generator.
type Option func(*Generator)

// WithLength sets the length of generated ids.
func WithLength(n int) Option {
	return func(g *Generator) {
		g.length = n
	}
}

// WithAlphabet sets the characters ids are drawn from.
func WithAlphabet(alphabet string) Option {
	return func(g *Generator) {
		g.alphabet = alphabet
	}
}

// WithMaxAttempts bounds the draws per id.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		g.maxAttempts = n
	}
}

// WithRandom replaces the random source.
func WithRandom(fn RandomFunc) Option {
	return func(g *Generator) {
		g.random = fn
	}
}

// WithLockFile serializes inventory updates across processes. Only meaningful on the OS
// filesystem.
func WithLockFile(path string) Option {
	return func(g *Generator) {
		g.lockPath = path
	}
}

// Generator draws ids and records them in a sorted, newline separated inventory file.
// The inventory only ever grows.
type Generator struct {
	fs          afero.Fs
	path        string
	lockPath    string
	length      int
	alphabet    string
	maxAttempts int
	random      RandomFunc
	mu          sync.Mutex
}

// New returns a generator backed by the inventory at path.
func New(fs afero.Fs, path string, opts ...Option) (*Generator, error) {
	g := &Generator{
		fs:          fs,
		path:        path,
		length:      DefaultLength,
		alphabet:    utils.Base34,
		maxAttempts: DefaultMaxAttempts,
		random:      utils.RandString,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.path == "" {
		return nil, errors.New("inventory path is required")
	}
	if g.length <= 0 {
		return nil, fmt.Errorf("invalid id length: %d", g.length)
	}
	if len(g.alphabet) < 2 {
		return nil, fmt.Errorf("alphabet needs at least two characters, got %q", g.alphabet)
	}
	if g.maxAttempts <= 0 {
		return nil, fmt.Errorf("invalid max attempts: %d", g.maxAttempts)
	}
	return g, nil
}

// Generate draws n new ids, records them in the inventory and returns them in the order
// they were drawn. Nothing is recorded when any id cannot be drawn.
func (g *Generator) Generate(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lockPath != "" {
		if err := utils.EnsureParent(g.lockPath); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
		lock := flock.New(g.lockPath)
		if err := lock.Lock(); err != nil {
			return nil, fmt.Errorf("lock id inventory: %w", err)
		}
		defer lock.Unlock()
	}

	inventory, err := g.read()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, n)
	batch := make(map[string]bool, n)
	for range n {
		id, err := g.draw(inventory, batch)
		if err != nil {
			return nil, err
		}
		batch[id] = true
		ids = append(ids, id)
	}

	merged := merge(inventory, slices.Sorted(slices.Values(ids)))
	if err := g.write(merged); err != nil {
		return nil, err
	}

	slog.Debug("ids generated", "count", len(ids), "inventory", len(merged))
	return ids, nil
}

// Inventory returns every issued id, sorted.
func (g *Generator) Inventory() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.read()
}

func (g *Generator) draw(inventory []string, batch map[string]bool) (string, error) {
	for range g.maxAttempts {
		id, err := g.random(g.alphabet, g.length)
		if err != nil {
			return "", fmt.Errorf("draw id: %w", err)
		}
		if batch[id] {
			continue
		}
		if _, found := slices.BinarySearch(inventory, id); found {
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: no unused id after %d attempts (%d issued)", ErrIDSpaceExhausted, g.maxAttempts, len(inventory)+len(batch))
}

func (g *Generator) read() ([]string, error) {
	data, err := afero.ReadFile(g.fs, g.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read id inventory %s: %w", g.path, err)
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	if !slices.IsSorted(ids) {
		slog.Warn("id inventory is not sorted", "path", g.path)
		slices.Sort(ids)
	}
	return slices.Compact(ids), nil
}

func (g *Generator) write(ids []string) error {
	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	if err := utils.WriteFileAtomic(g.fs, g.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write id inventory %s: %w", g.path, err)
	}
	return nil
}

// merge combines two sorted lists.
func merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
