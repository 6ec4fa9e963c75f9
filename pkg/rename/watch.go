package rename

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// WatchOptions configure Watch.
type WatchOptions struct {
	Pattern   string        // glob for new files, DefaultPattern when empty
	Debounce  time.Duration // how long a file must stay quiet before processing
	OnOutcome func(Outcome) // called after each processed file
}

// Watch renames matching files as they appear in dir until ctx is done.
// Files the renamer itself produced are ignored.
func (r *Renamer) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return ErrDirNotFound
	}
	pattern := strings.ToLower(opts.Pattern)
	if pattern == "" {
		pattern = DefaultPattern
	}
	stable := opts.Debounce
	if stable <= 0 {
		stable = 300 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	pending := map[string]time.Time{}
	produced := map[string]bool{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ok, _ := filepath.Match(pattern, strings.ToLower(filepath.Base(ev.Name))); !ok {
				continue
			}
			if produced[ev.Name] {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) < stable {
					continue
				}
				delete(pending, name)
				if !exists(name) {
					continue
				}
				out := r.RenameFile(name)
				if out.Target != "" {
					produced[out.Target] = true
				}
				if r.opts.Recorder != nil {
					if err := r.opts.Recorder.Record(uuid.NewString(), []Outcome{out}); err != nil {
						log.Printf("WARN recording %s: %v", out.Original, err)
					}
				}
				if opts.OnOutcome != nil {
					opts.OnOutcome(out)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}
