package pipeline

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// quietPeriod is the minimum gap spec.md §5 requires between the last
// filesystem event and a rebuild: "a debounced rebuild coalesces
// file-change bursts (≥50 ms of quiet) into a single re-source."
const quietPeriod = 50 * time.Millisecond

// Watch runs Pipeline.Run once immediately, then watches paths for changes
// and re-runs the full pipeline after each burst of file-change events goes
// quiet for quietPeriod. It blocks until ctx is cancelled. Grounded on the
// infrastructure/config/watcher.go ConfigWatcher, generalized
// from reloading one config file to re-sourcing the whole plugin set.
func (p *Pipeline) Watch(ctx context.Context, paths []string) error {
	p.Run(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			p.logger.Warn("failed to watch path", zap.String("path", path), zap.Error(err))
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			p.logger.Debug("watch event", zap.String("name", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(quietPeriod)
			} else {
				if !timer.Stop() {
					drainIfReady(timerC)
				}
				timer.Reset(quietPeriod)
			}
			timerC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", zap.Error(err))

		case <-timerC:
			p.logger.Info("debounced rebuild firing")
			p.Run(ctx)
			timerC = nil
		}
	}
}

// drainIfReady drains a possibly-already-fired timer channel without
// blocking when it isn't ready, avoiding a deadlock in the Stop/Reset race
// time.Timer documents.
func drainIfReady(c <-chan time.Time) {
	if c == nil {
		return
	}
	select {
	case <-c:
	default:
	}
}
