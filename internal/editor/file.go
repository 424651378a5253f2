package editor

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"storysync/internal/eventloop"

	"github.com/fsnotify/fsnotify"
)

const settleDelay = 50 * time.Millisecond

// FileControl treats a text file as the editing control. Saves made by any
// editor arrive as whole-file snapshots; remote changes are written back
// atomically so the file is never observed half-written.
//
// A save that lands while remote text is waiting to be written is never
// overwritten: the remote text is held back, the save is replayed on top of
// it, and the merged text is written afterwards.
//
// A file has no caret, so Selection only echoes what was last set.
type FileControl struct {
	path      string
	scheduler eventloop.Scheduler
	watcher   *fsnotify.Watcher

	// bumped on every write, read by the watcher before each read
	version atomic.Uint64

	// touched on the event loop only
	value      string // what the file is known to hold
	want       string // what the document wants the file to hold
	start, end int
	onInput    func(value string)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// OpenFile creates path if needed, loads its content and starts watching the
// containing directory. Snapshots are posted to scheduler.
func OpenFile(path string, scheduler eventloop.Scheduler) (*FileControl, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(abs, nil, 0644); err != nil {
			return nil, fmt.Errorf("create %s: %w", abs, err)
		}
		data, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// editors that save by rename replace the inode, so watch the directory
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fc := &FileControl{
		path:      abs,
		scheduler: scheduler,
		watcher:   watcher,
		value:     string(data),
		want:      string(data),
		done:      make(chan struct{}),
	}

	fc.wg.Add(1)
	go fc.watch()

	return fc, nil
}

// Path returns the absolute path of the file.
func (fc *FileControl) Path() string {
	return fc.path
}

func (fc *FileControl) Value() string {
	return fc.value
}

// SetValue replaces the file content unless it already holds value. The
// write is deferred while the file holds a save that has not been read yet.
func (fc *FileControl) SetValue(value string) {
	fc.want = value
	fc.flush()
}

// Pending reports whether document text is waiting on an unread save.
func (fc *FileControl) Pending() bool {
	return fc.want != fc.value
}

func (fc *FileControl) flush() {
	if fc.want == fc.value {
		return
	}
	if data, err := os.ReadFile(fc.path); err == nil && string(data) != fc.value {
		// the watcher will deliver this save; it is merged then
		return
	}
	if err := writeAtomic(fc.path, fc.want); err != nil {
		log.Printf("⚠️  Failed to write %s: %v", fc.path, err)
		return
	}
	fc.value = fc.want
	fc.version.Add(1)
}

func (fc *FileControl) Selection() (int, int) {
	return fc.start, fc.end
}

func (fc *FileControl) SetSelection(start, end int) {
	fc.start, fc.end = start, end
}

// OnInput sets the handler receiving external snapshots, on the scheduler.
func (fc *FileControl) OnInput(fn func(value string)) {
	fc.onInput = fn
}

// Close stops watching the file.
func (fc *FileControl) Close() error {
	var err error
	fc.once.Do(func() {
		close(fc.done)
		err = fc.watcher.Close()
		fc.wg.Wait()
	})
	return err
}

func (fc *FileControl) watch() {
	defer fc.wg.Done()

	// a save is often several events (truncate, write, rename); read once
	// they settle so a half-written file is never taken as the new buffer
	var timer *time.Timer
	var settled <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-fc.done:
			return

		case event, ok := <-fc.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fc.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			settled = timer.C

		case <-settled:
			settled = nil
			seen := fc.version.Load()
			data, err := os.ReadFile(fc.path)
			if err != nil {
				// removed or mid-rename; the next event carries the content
				continue
			}
			snapshot := string(data)
			fc.scheduler.Post(func() { fc.external(snapshot, seen) })

		case err, ok := <-fc.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error for %s: %v", fc.path, err)
		}
	}
}

func (fc *FileControl) external(snapshot string, seen uint64) {
	if seen != fc.version.Load() {
		// written since this was read; only the current content counts
		data, err := os.ReadFile(fc.path)
		if err != nil {
			return
		}
		snapshot = string(data)
	}
	if snapshot == fc.value {
		fc.flush()
		return
	}

	base := fc.value
	fc.value = snapshot

	input := snapshot
	if fc.want != base {
		input = rebase(base, snapshot, fc.want)
	}
	if fc.onInput == nil {
		fc.want = snapshot
		return
	}
	fc.onInput(input)
	fc.flush()
}

func writeAtomic(path, value string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".storysync-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
