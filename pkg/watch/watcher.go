// Package watch recompiles a regulation whenever a notice file in a
// directory is created or rewritten, reporting the compiled tree and its
// diff against the base version.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/fsnotify.v1"

	"github.com/coolbeans/regparser/pkg/compiler"
	"github.com/coolbeans/regparser/pkg/diff"
	"github.com/coolbeans/regparser/pkg/logging"
	"github.com/coolbeans/regparser/pkg/metrics"
	"github.com/coolbeans/regparser/pkg/notice"
	"github.com/coolbeans/regparser/pkg/tree"
)

// DefaultDebounce is how long a file must be quiet before it is compiled.
const DefaultDebounce = 200 * time.Millisecond

// Update is the outcome of compiling one notice file.
type Update struct {
	Path    string
	Notice  *notice.Notice
	Result  compiler.Result
	Changes diff.Changes
	// Err is set when the notice could not be read or parsed; the other
	// fields are then empty.
	Err error
}

// Options configure a NoticeWatcher.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Parser   *notice.Parser
	Interner *tree.Interner
	// LabelDepths is passed to the compiler.
	LabelDepths compiler.LabelDepths
	Debounce    time.Duration
}

// NoticeWatcher compiles the notices found in a directory against a fixed
// base tree.
type NoticeWatcher struct {
	mu       sync.RWMutex
	dir      string
	base     *tree.Node
	frozen   *tree.FrozenNode
	options  Options
	logger   *slog.Logger
	parser   *notice.Parser
	interner *tree.Interner
}

// New creates a watcher for dir. base is never modified.
func New(dir string, base *tree.Node, options Options) *NoticeWatcher {
	logger := logging.OrDiscard(options.Logger).With("dir", dir)
	parser := options.Parser
	if parser == nil {
		parser = notice.NewParser(nil, logger)
	}
	interner := options.Interner
	if interner == nil {
		interner = tree.NewInterner()
	}
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	return &NoticeWatcher{
		dir:      dir,
		base:     base,
		frozen:   interner.Freeze(base),
		options:  options,
		logger:   logger,
		parser:   parser,
		interner: interner,
	}
}

func isNoticeFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

// SetLabelDepths changes the label depths used by later compilations.
func (w *NoticeWatcher) SetLabelDepths(depths compiler.LabelDepths) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.options.LabelDepths = depths
}

func (w *NoticeWatcher) labelDepths() compiler.LabelDepths {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.options.LabelDepths
}

// Process compiles the notice at path against the base tree.
func (w *NoticeWatcher) Process(path string) Update {
	update := Update{Path: path}
	file, err := os.Open(path)
	if err != nil {
		update.Err = fmt.Errorf("opening notice: %w", err)
		return update
	}
	defer file.Close()

	parsed, err := w.parser.ParseReader(file)
	if err != nil {
		update.Err = fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		return update
	}

	result := compiler.Compile(w.base, parsed.Changes, compiler.Options{
		Logger:      w.logger.With("notice", parsed.DocumentNumber),
		Metrics:     w.options.Metrics,
		LabelDepths: w.labelDepths(),
	})
	update.Notice = parsed
	update.Result = result
	update.Changes = diff.ChangesBetween(w.frozen, w.interner.Freeze(result.Tree))
	w.options.Metrics.SetInternedNodes(w.interner.Size())
	return update
}

// ScanOnce compiles every notice currently in the directory, in file name
// order.
func (w *NoticeWatcher) ScanOnce(ctx context.Context) ([]Update, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", w.dir, err)
	}
	var updates []Update
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return updates, err
		}
		if entry.IsDir() || !isNoticeFile(entry.Name()) {
			continue
		}
		updates = append(updates, w.Process(filepath.Join(w.dir, entry.Name())))
	}
	return updates, nil
}

// Run watches the directory until ctx is done, calling onUpdate for each
// notice that is created or rewritten. Bursts of events for one file are
// collapsed by the debounce interval.
func (w *NoticeWatcher) Run(ctx context.Context, onUpdate func(Update)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", w.dir, err)
	}
	w.logger.Info("watching for notices")

	ready := make(chan string)
	timers := map[string]*time.Timer{}
	defer func() {
		for _, timer := range timers {
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
			if !isNoticeFile(event.Name) ||
				event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := event.Name
			if timer, ok := timers[path]; ok {
				timer.Reset(w.options.Debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.options.Debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			update := w.Process(path)
			if update.Err != nil {
				w.logger.Warn("notice not compiled", "path", path, "error", update.Err)
			} else {
				w.logger.Info("notice compiled",
					"path", path,
					"changes", len(update.Changes),
					"forced", update.Result.Forced)
			}
			onUpdate(update)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("notice watch error", "error", err)
		}
	}
}
