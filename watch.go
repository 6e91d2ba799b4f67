package remix

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs a conversion whenever the input scene file changes, so a
// modeling session's re-exports show up in the running renderer without
// manual steps. Each successful pass rewrites the override layer and bumps
// the mod manifest's mtime.
type Watcher struct {
	Options ConvertOptions
	// Debounce collapses the burst of filesystem events an exporter
	// produces into one conversion pass.
	Debounce time.Duration
	// OnRun, when set, receives the outcome of every conversion pass.
	OnRun func(*ConversionReport, error)
}

// NewWatcher returns a Watcher for the given conversion options with a
// half-second debounce.
func NewWatcher(opts ConvertOptions) *Watcher {
	return &Watcher{
		Options:  opts,
		Debounce: 500 * time.Millisecond,
	}
}

// Run converts once immediately, then blocks watching the input file until
// the context is canceled. Conversion failures are reported through OnRun
// and logged, not returned; only watcher setup errors and context
// cancellation end the loop.
func (watch *Watcher) Run(ctx context.Context) error {
	watch.convert(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// watch the directory rather than the file: exporters replace the file
	// on save, which drops a direct watch
	if err := fw.Add(filepath.Dir(watch.Options.InputPath)); err != nil {
		return err
	}
	target := filepath.Base(watch.Options.InputPath)

	timer := time.NewTimer(watch.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			timer.Reset(watch.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)

		case <-timer.C:
			watch.convert(ctx)
		}
	}
}

func (watch *Watcher) convert(ctx context.Context) {
	report, err := Convert(ctx, watch.Options)
	if err != nil {
		logger.Error("conversion failed", "input", watch.Options.InputPath, "err", err)
	} else {
		logger.Info("conversion pass complete", "input", watch.Options.InputPath)
	}
	if watch.OnRun != nil {
		watch.OnRun(report, err)
	}
}
