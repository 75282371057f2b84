// Package utils holds small filesystem and logging helpers shared by stsync packages.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// maxPending bounds the bytes kept for a line that has not been terminated yet.
const maxPending = 1 << 20

// LogInterceptor stamps every line written through it with a sequence number and
// the time it was seen before passing it on to the target.
// Partial lines are held until their newline arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending []byte
	now     func() time.Time
}

type InterceptorOption func(*LogInterceptor)

// WithInterceptorClock replaces time.Now for the line stamps.
func WithInterceptorClock(now func() time.Time) InterceptorOption {
	return func(i *LogInterceptor) {
		i.now = now
	}
}

func NewLogInterceptor(target io.Writer, opts ...InterceptorOption) *LogInterceptor {
	i := &LogInterceptor{target: target, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Write reports len(p) on success, regardless of the stamped size written downstream.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending = append(i.pending, p...)
	for {
		idx := bytes.IndexByte(i.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(i.pending[:idx], []byte{'\r'})
		if err := i.emit(line); err != nil {
			return 0, err
		}
		i.pending = i.pending[idx+1:]
	}

	if len(i.pending) > maxPending {
		if err := i.emit(i.pending); err != nil {
			return 0, err
		}
		i.pending = nil
	}
	return len(p), nil
}

// Close writes out a trailing unterminated line, if any.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.pending) == 0 {
		return nil
	}
	err := i.emit(i.pending)
	i.pending = nil
	return err
}

func (i *LogInterceptor) emit(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.Grow(len(line) + 48)
	buf.WriteString(slog.Uint64("line", i.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}
