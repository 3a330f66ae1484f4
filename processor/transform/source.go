package transform

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SimioLLC/WebAPISync/errors"
)

// Source supplies the stylesheet text current at drain time.
type Source interface {
	Text() string
}

// Static is a Source that never changes.
type Static string

// Text returns the stylesheet text.
func (s Static) Text() string { return string(s) }

// FileSource keeps the contents of a stylesheet file, reloading it when the
// file changes. A changed file that no longer compiles is logged and the
// last good text stays in effect.
type FileSource struct {
	path     string
	text     atomic.Pointer[string]
	logger   *slog.Logger
	debounce time.Duration
	reloads  atomic.Int64
}

// NewFileSource reads and compiles path once. It fails if the file cannot
// be read or does not compile.
func NewFileSource(path string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "FileSource", "NewFileSource", "resolve stylesheet path")
	}

	s := &FileSource{
		path:     abs,
		logger:   logger.With("component", "stylesheet", "path", abs),
		debounce: 200 * time.Millisecond,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Text returns the last successfully compiled stylesheet text.
func (s *FileSource) Text() string {
	if p := s.text.Load(); p != nil {
		return *p
	}
	return ""
}

// Reloads returns how many times the file was loaded successfully.
func (s *FileSource) Reloads() int64 {
	return s.reloads.Load()
}

// Reload reads the file now.
func (s *FileSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.WrapInvalid(err, "FileSource", "Reload", "read stylesheet")
	}
	text := string(data)
	if _, err := Compile(text); err != nil {
		return errors.WrapInvalid(err, "FileSource", "Reload", "compile stylesheet")
	}
	s.text.Store(&text)
	s.reloads.Add(1)
	return nil
}

// Watch reloads the file on every write until ctx is done. The directory is
// watched rather than the file so that editors replacing the file by rename
// are picked up.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "FileSource", "Watch", "create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return errors.WrapInvalid(err, "FileSource", "Watch", "watch stylesheet directory")
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs != s.path {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("Stylesheet reload failed, keeping previous version", "error", err)
					return
				}
				s.logger.Info("Stylesheet reloaded")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Stylesheet watcher error", "error", err)
		}
	}
}
