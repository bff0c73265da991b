//go:build linux

package fstrace

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Tracer is the Linux adapter: a single fanotify group multiplexed through
// epoll, feeding the shared broadcast sink every embedded tracerCore
// provides.
type Tracer struct {
	tracerCore

	mu        sync.Mutex
	closeOnce sync.Once
	fd        int
	poller    *fdPoller
	started   bool
	runDone   chan struct{}
}

// New opens a fanotify notification group and its epoll poller. The
// returned Tracer has no marks installed yet; call Watch for each root
// directory, then Start.
func New(opts Options) (*Tracer, error) {
	fd, err := unix.FanotifyInit(fanotifyInitFlags, fanotifyEventFlags)
	if err != nil {
		return nil, fsErr("fanotify_init", "", err)
	}

	poller, err := newFdPoller(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Tracer{
		tracerCore: newTracerCore(),
		fd:         fd,
		poller:     poller,
		runDone:    make(chan struct{}),
	}, nil
}

// Watch recursively installs fanotify marks on dir and every subdirectory
// discovered beneath it (breadth-first, symlinks skipped), per the
// component design. It may be called any number of times, before or after
// Start, to add further watch roots.
func (t *Tracer) Watch(dir string) error {
	if t.cancel.IsCancelled() {
		return ErrStreamClosed
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fsErr("stat", dir, err)
	}
	if !info.IsDir() {
		return fsErr("watch", dir, fmt.Errorf("not a directory"))
	}

	return walkAndMark(t.fd, dir)
}

// Start launches the background goroutine that polls fanotify via epoll
// and publishes decoded events to the broadcast sink. It returns
// immediately; call Close to stop it.
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
	t.started = true
	t.mu.Unlock()

	go t.run()
	return nil
}

// Close stops the poller, flushes all marks, and closes the broadcast
// sink. It is idempotent: every call, including the first, returns true
// without touching kernel resources more than once.
func (t *Tracer) Close() bool {
	t.cancel.Cancel()

	t.closeOnce.Do(func() {
		t.mu.Lock()
		started := t.started
		t.mu.Unlock()

		t.poller.wake()
		if started {
			// Wait for run() to observe the cancellation and stop touching
			// t.fd before we close it out from under it.
			<-t.runDone
		}

		unix.FanotifyMark(t.fd, unix.FAN_MARK_FLUSH, 0, unix.AT_FDCWD, "/")
		t.poller.close()
		unix.Close(t.fd)
		t.events.close()
	})
	return true
}

func (t *Tracer) run() {
	defer close(t.runDone)

	var buf [4096 * 32]byte

	for {
		if t.cancel.IsCancelled() {
			return
		}

		ready, err := t.poller.wait()
		if err != nil {
			if debug {
				logf("tracer: poller wait: %v", err)
			}
			return
		}
		if !ready {
			continue
		}

		n, err := unix.Read(t.fd, buf[:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			if debug {
				logf("tracer: read fanotify fd: %v", err)
			}
			return
		}
		if n < int(sizeOfFanotifyEventMetadata) {
			continue
		}

		t.decodeBatch(buf[:n])
	}
}

// decodeBatch walks every FanotifyEventMetadata record packed into buf and
// publishes the FileSystemEvent(s) each one maps to.
func (t *Tracer) decodeBatch(buf []byte) {
	i := 0
	n := len(buf)

	for n >= int(sizeOfFanotifyEventMetadata) {
		metadata := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[i]))
		if metadata.Event_len == 0 || int(metadata.Event_len) > n {
			break
		}
		if metadata.Vers != unix.FANOTIFY_METADATA_VERSION {
			break
		}

		t.decodeOne(buf, i, metadata)

		n -= int(metadata.Event_len)
		i += int(metadata.Event_len)
	}
}

func (t *Tracer) decodeOne(buf []byte, i int, metadata *unix.FanotifyEventMetadata) {
	mask := metadata.Mask
	isDir := mask&unix.FAN_ONDIR != 0

	records := parseFidRecords(buf, i, metadata)
	if len(records) == 0 {
		return
	}

	if mask&fanRename != 0 {
		t.decodeRename(records, isDir)
		return
	}

	verb, ok := maskToEventVerb(mask)
	if !ok {
		if debug {
			logf("tracer: unmapped mask 0x%x", mask)
		}
		verb = Unknown
	}

	record := records[0]
	p, err := resolveFidRecord(record)
	if err != nil {
		if debug && err != errStaleHandle {
			logf("tracer: resolve: %v", err)
		}
		return
	}

	t.publish(simpleEventType(verb), p, isDir)
}

// decodeRename pairs the FAN_EVENT_INFO_TYPE_OLD_DFID_NAME and
// _NEW_DFID_NAME records attached to a single FAN_RENAME event. If only
// one half resolves (the other's handle went stale before we could look
// it up), the resolved half is still delivered, as an unpaired Move.
func (t *Tracer) decodeRename(records []fidRecord, isDir bool) {
	var oldPath, newPath string
	var haveOld, haveNew bool

	for _, rec := range records {
		switch rec.infoType {
		case fanEventInfoTypeOldDFIDName:
			if p, err := resolveFidRecord(rec); err == nil {
				oldPath, haveOld = p, true
			}
		case fanEventInfoTypeNewDFIDName:
			if p, err := resolveFidRecord(rec); err == nil {
				newPath, haveNew = p, true
			}
		}
	}

	switch {
	case haveOld && haveNew:
		// MovedFrom carries the source in Target.Path and the destination
		// in Peer; MovedTo carries the destination in Target.Path and the
		// source in Peer. Both halves of the same rename are published.
		t.publish(movedFromType(newPath), oldPath, isDir)
		t.publish(movedToType(oldPath), newPath, isDir)
	case haveOld:
		t.publish(simpleEventType(Move), oldPath, isDir)
	case haveNew:
		t.publish(simpleEventType(Move), newPath, isDir)
	}
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

	// A freshly created directory needs its own mark installed so the
	// recursive watch follows it, per the component design.
	if isDir && typ.Verb == Create {
		if err := walkAndMark(t.fd, path); err != nil && debug {
			logf("tracer: mark new directory %s: %v", path, err)
		}
	}
}
