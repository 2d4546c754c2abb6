package editloc

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Watcher keeps edit-location overlays current. It recomputes the location
// of every tracked pending edit when its target file changes on disk, and
// drops the overlay the moment the approval is resolved. Overlays must never
// outlive the approval they belong to.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	overlays map[string]types.PendingEdit   // requestID -> edit
	byPath   map[string]map[string]struct{} // target path -> requestIDs

	unsubscribe func()
	done        chan struct{}
}

// NewWatcher creates a watcher wired to the approval.resolved notification.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		overlays: make(map[string]types.PendingEdit),
		byPath:   make(map[string]map[string]struct{}),
		done:     make(chan struct{}),
	}

	w.unsubscribe = event.Subscribe(event.ApprovalResolved, func(e event.Event) {
		if data, ok := e.Data.(event.ApprovalResolvedData); ok {
			w.Drop(data.RequestID)
		}
	})

	go w.run()
	return w, nil
}

// Track registers a pending edit, starts watching its target file, and
// publishes the initial location.
func (w *Watcher) Track(edit types.PendingEdit) error {
	w.mu.Lock()
	w.overlays[edit.RequestID] = edit
	ids, watched := w.byPath[edit.TargetPath]
	if ids == nil {
		ids = make(map[string]struct{})
		w.byPath[edit.TargetPath] = ids
	}
	ids[edit.RequestID] = struct{}{}
	w.mu.Unlock()

	if !watched {
		if err := w.fsw.Add(edit.TargetPath); err != nil {
			logging.Warn().Str("path", edit.TargetPath).Err(err).Msg("cannot watch document")
		}
	}

	w.publish(edit)
	return nil
}

// Drop removes an overlay and publishes its absence so decorations clear.
func (w *Watcher) Drop(requestID string) {
	w.mu.Lock()
	edit, ok := w.overlays[requestID]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.overlays, requestID)

	ids := w.byPath[edit.TargetPath]
	delete(ids, requestID)
	lastForPath := len(ids) == 0
	if lastForPath {
		delete(w.byPath, edit.TargetPath)
	}
	w.mu.Unlock()

	if lastForPath {
		_ = w.fsw.Remove(edit.TargetPath)
	}

	event.PublishSync(event.Event{
		Type: event.EditLocationUpdated,
		Data: event.EditLocationUpdatedData{
			RequestID:  requestID,
			TargetPath: edit.TargetPath,
			Location:   nil,
		},
	})
}

// Close stops the watcher. Tracked overlays are discarded without
// notification.
func (w *Watcher) Close() error {
	w.unsubscribe()
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				w.recomputePath(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("document watch error")
		}
	}
}

func (w *Watcher) recomputePath(path string) {
	w.mu.Lock()
	var edits []types.PendingEdit
	for id := range w.byPath[path] {
		edits = append(edits, w.overlays[id])
	}
	w.mu.Unlock()

	for _, edit := range edits {
		w.publish(edit)
	}
}

// publish recomputes the location against the current on-disk snapshot. The
// document is only ever read; all mutation happens on the host editor's own
// write path.
func (w *Watcher) publish(edit types.PendingEdit) {
	var location *types.EditLocation
	if data, err := os.ReadFile(edit.TargetPath); err == nil {
		if loc, ok := LocateEdit(edit, string(data)); ok {
			location = &loc
		}
	} else {
		logging.Debug().Str("path", edit.TargetPath).Err(err).Msg("document snapshot unavailable")
	}

	event.Publish(event.Event{
		Type: event.EditLocationUpdated,
		Data: event.EditLocationUpdatedData{
			RequestID:  edit.RequestID,
			TargetPath: edit.TargetPath,
			Location:   location,
		},
	})
}
