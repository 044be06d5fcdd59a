package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"

	"github.com/Benny93/relatio-go/internal/logging"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 2 * time.Second

// RebuildFunc rebuilds the graph from the given input files.
type RebuildFunc func(ctx context.Context, inputs []string) error

// WatchOptions configures WatchInputs.
type WatchOptions struct {
	Debounce time.Duration
	Logger   *zap.Logger
}

// WatchInputs builds once from the row files under dir, then rebuilds every
// time they change. Blocks until the context is cancelled.
func WatchInputs(ctx context.Context, dir string, opts WatchOptions, rebuild RebuildFunc) error {
	logger := logging.OrNop(opts.Logger)
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	matcher, err := loadGitignoreMatcher(dir)
	if err != nil {
		logger.Warn("ignoring unreadable .gitignore", zap.Error(err))
		matcher = nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && shouldIgnoreDir(d.Name(), path, dir, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	run := func() {
		inputs, err := InputFiles(dir, matcher)
		if err != nil {
			logger.Error("listing inputs", zap.Error(err))
			return
		}
		if err := rebuild(ctx, inputs); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rebuild failed", zap.Error(err))
		}
	}

	logger.Info("watching for changes", zap.String("dir", dir))
	run()

	changed := make(map[string]bool)
	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !shouldIgnoreDir(info.Name(), event.Name, dir, matcher) {
						_ = watcher.Add(event.Name)
					}
					continue
				}
			}
			if !shouldWatchFile(event.Name, dir, matcher) {
				continue
			}
			changed[event.Name] = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))

		case <-batchTimer.C:
			if len(changed) == 0 {
				continue
			}
			logger.Info("inputs changed", zap.Int("files", len(changed)))
			changed = make(map[string]bool)
			run()
		}
	}
}

// InputFiles lists the row files under dir in lexical order, skipping
// ignored directories and files.
func InputFiles(dir string, matcher gitignore.Matcher) ([]string, error) {
	var inputs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && shouldIgnoreDir(d.Name(), path, dir, matcher) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldWatchFile(path, dir, matcher) {
			inputs = append(inputs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(inputs)
	return inputs, nil
}

// isInputFile reports whether path has a row file extension.
func isInputFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".jsonl", ".ndjson":
		return true
	}
	return false
}

// shouldWatchFile checks if a file should be watched.
func shouldWatchFile(path string, dir string, matcher gitignore.Matcher) bool {
	relPath, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	if matcher != nil {
		pathParts := strings.Split(relPath, string(filepath.Separator))
		if matcher.Match(pathParts, false) {
			return false
		}
	}
	return isInputFile(path)
}

// shouldIgnoreDir checks if a directory should be ignored.
func shouldIgnoreDir(name, path, dir string, matcher gitignore.Matcher) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "venv":
		return true
	}

	if matcher != nil {
		relPath, _ := filepath.Rel(dir, path)
		pathParts := strings.Split(relPath, string(filepath.Separator))
		return matcher.Match(pathParts, true)
	}
	return false
}

// loadGitignoreMatcher loads a gitignore matcher from dir.
func loadGitignoreMatcher(dir string) (gitignore.Matcher, error) {
	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}
