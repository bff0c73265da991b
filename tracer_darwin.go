//go:build darwin

package fstrace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsevents"
)

// Tracer is the Darwin adapter: a single FSEvents stream covering every
// watched root, translated into the shared FileSystemEvent shape.
type Tracer struct {
	tracerCore

	mu        sync.Mutex
	closeOnce sync.Once
	stream    *fsevents.EventStream
	paths     []string
	started   bool
}

// New prepares a Darwin Tracer. The underlying FSEventStream isn't created
// until Start; Watch only records paths.
func New(opts Options) (*Tracer, error) {
	return &Tracer{
		tracerCore: newTracerCore(),
		stream: &fsevents.EventStream{
			Latency: 0,
			Flags:   fsevents.FileEvents | fsevents.IgnoreSelf | fsevents.WatchRoot,
			EventID: fsevents.LatestEventID(),
		},
	}, nil
}

// Watch records dir as a root for the FSEvents stream. It must be called
// before Start; FSEvents on Darwin does not support adding paths to an
// already-running stream.
func (t *Tracer) Watch(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	if t.cancel.IsCancelled() {
		return ErrStreamClosed
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fsErr("watch", dir, err)
	}
	if info, err := os.Stat(abs); err != nil {
		return fsErr("stat", abs, err)
	} else if !info.IsDir() {
		return fsErr("watch", abs, fmt.Errorf("not a directory"))
	}

	t.paths = append(t.paths, abs)
	return nil
}

// Start resolves every path registered with Watch to its canonical form
// (failing if one cannot be resolved), creates and starts the FSEventStream
// over them, and launches the goroutine that decodes batches into
// FileSystemEvents. It returns without waiting for that goroutine.
func (t *Tracer) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	if t.cancel.IsCancelled() {
		t.mu.Unlock()
		return ErrStreamClosed
	}
	if len(t.paths) == 0 {
		t.mu.Unlock()
		return fmt.Errorf("fstrace: Start called with no watched directories")
	}
	paths := make([]string, 0, len(t.paths))
	for _, p := range t.paths {
		canonical, err := filepath.EvalSymlinks(p)
		if err != nil {
			t.mu.Unlock()
			return fsErr("canonicalize", p, err)
		}
		paths = append(paths, canonical)
	}
	t.stream.Paths = paths
	t.started = true
	t.mu.Unlock()

	t.stream.Start()
	go t.run()
	return nil
}

// Close stops the FSEventStream and closes the broadcast sink. It is
// idempotent: every call, including the first, returns true without
// touching kernel resources more than once.
func (t *Tracer) Close() bool {
	t.cancel.Cancel()
	t.closeOnce.Do(func() {
		t.stream.Stop()
		t.events.close()
	})
	return true
}

func (t *Tracer) run() {
	for {
		select {
		case <-t.cancel.Done():
			return
		case batch, ok := <-t.stream.Events:
			if !ok {
				return
			}
			t.decodeBatch(batch)
		}
	}
}

// decodeBatch pairs rename halves within a single FSEvents callback
// invocation. The Go FSEvents binding doesn't surface the kernel's 64-bit
// file ID used for renames, so pairing falls back to order-of-arrival: an
// ItemRenamed event whose path no longer exists on disk is the source
// half, one whose path does exist is the destination half, and the oldest
// unpaired source is matched to the next destination. Any source left
// unpaired when the batch ends is delivered as an unpaired Move, and the
// partial state is dropped rather than carried into the next batch.
func (t *Tracer) decodeBatch(batch []fsevents.Event) {
	var pendingSources []string

	for _, e := range batch {
		path := filepath.Join(string(os.PathSeparator), e.Path)
		isDir := e.Flags&fsevents.ItemIsDir != 0
		created := e.Flags&fsevents.ItemCreated != 0
		renamed := e.Flags&fsevents.ItemRenamed != 0
		modified := e.Flags&(fsevents.ItemModified|fsevents.ItemInodeMetaMod|fsevents.ItemFinderInfoMod|fsevents.ItemChangeOwner|fsevents.ItemXattrMod) != 0

		// Coalesced flags are resolved in priority order: created (with
		// removed: Delete; with renamed: rename), then removed, modified,
		// renamed.
		switch {
		case e.Flags&fsevents.ItemRemoved != 0:
			t.publish(simpleEventType(Delete), path, isDir)
		case created && !renamed:
			t.publish(simpleEventType(Create), path, isDir)
		case !created && modified:
			t.publish(simpleEventType(Modify), path, isDir)
		case renamed:
			if pathExists(path) {
				if len(pendingSources) > 0 {
					source := pendingSources[0]
					pendingSources = pendingSources[1:]
					t.publish(movedFromType(path), source, isDir)
					t.publish(movedToType(source), path, isDir)
				} else {
					t.publish(simpleEventType(Move), path, isDir)
				}
			} else {
				pendingSources = append(pendingSources, path)
			}
		default:
			if debug {
				logf("tracer: unmapped fsevents flags 0x%x for %s", e.Flags, path)
			}
			t.publish(simpleEventType(Unknown), path, isDir)
		}
	}

	for _, source := range pendingSources {
		if debug {
			logf("tracer: rename source %s left unpaired at end of batch", source)
		}
		t.publish(simpleEventType(Move), source, false)
	}
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (t *Tracer) publish(typ FileSystemEventType, path string, isDir bool) {
	kind := File
	if isDir {
		kind = Directory
	}
	ev := FileSystemEvent{Type: typ, Target: &FileSystemTarget{Kind: kind, Path: path}}
	if err := t.events.send(ev); err != nil && debug {
		logf("tracer: publish after close: %v", err)
	}
}
