package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// SpoolSource watches a directory for command files. Each non-empty line
// of a file is one batch; the file is removed once read. Files whose name
// starts with "." are ignored, so writers create a dot file and rename it
// into place when complete.
type SpoolSource struct {
	dir string
	svc Submitter
	log *slog.Logger
}

// NewSpoolSource returns a source for dir.
func NewSpoolSource(dir string, svc Submitter, log *slog.Logger) *SpoolSource {
	return &SpoolSource{
		dir: dir,
		svc: svc,
		log: log.With("source", "spool", "dir", dir),
	}
}

// Run processes files already in the directory, then every file created
// or written until ctx is cancelled.
func (s *SpoolSource) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch spool dir: %w", err)
	}
	s.log.Info("spool source started")
	defer s.log.Info("spool source stopped")

	s.scan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.process(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("spool watcher error", "error", err)
		}
	}
}

// scan processes every file present, in name order.
func (s *SpoolSource) scan() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("read spool dir failed", "error", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		s.process(filepath.Join(s.dir, name))
	}
}

// process submits the lines of one file and removes it. It returns the
// number of accepted batches.
func (s *SpoolSource) process(path string) int {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return 0
	}
	info, err := os.Lstat(path)
	if err != nil {
		// Already consumed by an earlier event.
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("stat spool file failed", "path", path, "error", err)
		}
		return 0
	}
	if !info.Mode().IsRegular() {
		return 0
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read spool file failed", "path", path, "error", err)
		}
		return 0
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error("remove spool file failed, skipping it", "path", path, "error", err)
		return 0
	}

	accepted := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if submit(s.svc, s.log, line) {
			accepted++
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Warn("spool file truncated", "path", path, "error", err)
	}
	s.log.Debug("spool file processed", "path", path, "batches", accepted)
	return accepted
}
