package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// auditWriter appends audit records to a single active segment and, once
// the segment reaches maxBytes, renames it to a timestamped sibling
// (audit-20260828T101500.000000000.log). Rolled segments are never
// reopened, so the trail stays append-only end to end.
type auditWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxBytes int64
	keep     int
	maxAge   time.Duration
	size     int64
}

func newAuditWriter(path string, maxBytes int64, keep int, maxAge time.Duration) (*auditWriter, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &auditWriter{path: path, maxBytes: maxBytes, keep: keep, maxAge: maxAge}, nil
}

func (w *auditWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.maxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.roll(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *auditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *auditWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// roll retires the active segment under a timestamped name and prunes
// old segments. The stamp carries nanoseconds so rapid rolls do not
// collide.
func (w *auditWriter) roll() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.size = 0

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	if err := os.Rename(w.path, w.segmentName(stamp)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("roll audit log: %w", err)
	}
	w.prune()
	return nil
}

func (w *auditWriter) segmentName(stamp string) string {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext) + "-" + stamp + ext
}

// prune drops rolled segments beyond the keep count, then those past the
// retention window. The stamp format sorts lexically in time order.
func (w *auditWriter) prune() {
	segments, err := filepath.Glob(w.segmentName("*"))
	if err != nil || len(segments) == 0 {
		return
	}
	sort.Strings(segments)

	if w.keep > 0 && len(segments) > w.keep {
		for _, path := range segments[:len(segments)-w.keep] {
			_ = os.Remove(path)
		}
		segments = segments[len(segments)-w.keep:]
	}
	if w.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.maxAge)
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
