// Package watcher reports changes to a set of CSV sources.
package watcher

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watcher watches source files and directories and calls onChange once
// per burst of changes.
type Watcher struct {
	paths    []string
	onChange func(changed []string)
	debounce time.Duration
	ready    chan struct{}
}

// New creates a watcher for paths. Each may be a file or a directory; a
// directory is watched recursively for *.csv files.
func New(paths []string, onChange func(changed []string)) *Watcher {
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		ready:    make(chan struct{}),
	}
}

// WithDebounce sets the quiet period that ends a burst.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Ready is closed once every path is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Watch blocks until ctx is cancelled. onChange runs on the calling
// goroutine with the sorted absolute paths that changed.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer fw.Close()

	files := make(map[string]bool)
	trees := make(map[string]bool)
	watched := make(map[string]bool)
	add := func(dir string) error {
		if watched[dir] {
			return nil
		}
		if err := fw.Add(dir); err != nil {
			return errors.Wrapf(err, "watch %s", dir)
		}
		watched[dir] = true
		return nil
	}

	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", p)
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				trees[path] = true
				return add(path)
			}
			if path == abs {
				files[abs] = true
				// Editors replace files, so watch the directory.
				return add(filepath.Dir(abs))
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "watch %s", p)
		}
		log.Printf("Watcher: watching %s", abs)
	}
	close(w.ready)

	relevant := func(name string) bool {
		return files[name] || (trees[filepath.Dir(name)] && strings.EqualFold(filepath.Ext(name), ".csv"))
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if event.Has(fsnotify.Create) && trees[filepath.Dir(name)] {
				// New subdirectories of a watched tree are watched too.
				if err := add(name); err == nil {
					trees[name] = true
				}
			}
			if !relevant(name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending[name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			log.Printf("Watcher: %d sources changed", len(changed))
			w.onChange(changed)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher: error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
