// Package watch implements insservgo's supplemental --watch mode: instead
// of running once, it re-runs the engine pipeline whenever a script is
// added, removed or edited inside the watched init.d directory.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"insservgo/engine"
	"insservgo/logging"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long to wait after the last filesystem event before
// triggering a re-run, so that a burst of edits (a package install dropping
// several scripts at once) collapses into a single resolution pass.
const Debounce = 300 * time.Millisecond

// Run watches req.InitDir and req.OverrideDir (if set) for changes, running
// the engine once immediately and again after every settled burst of
// filesystem events, until ctx is canceled.
func Run(ctx context.Context, req engine.Request, onResult func(*engine.Result, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(req.InitDir); err != nil {
		return err
	}
	if req.OverrideDir != "" {
		_ = w.Add(req.OverrideDir) // best-effort: override dir is optional
	}

	log := logging.Default()
	trigger := func() {
		res, err := engine.Run(req)
		onResult(res, err)
	}

	trigger()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			log.Debug("watch event", "path", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(Debounce, trigger)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", watchErr)
		}
	}
}

// relevant filters out events on dotfiles and editor swap files, which
// would otherwise trigger a needless re-run.
func relevant(ev fsnotify.Event) bool {
	base := filepath.Base(ev.Name)
	if len(base) == 0 {
		return false
	}
	if base[0] == '.' {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
