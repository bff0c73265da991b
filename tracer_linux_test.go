//go:build linux

package fstrace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForEvent(t *testing.T, events <-chan FileSystemEvent, verb EventVerb, path string) FileSystemEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type.Verb == verb && ev.Target != nil && ev.Target.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v %s", verb, path)
		}
	}
}

func newTestTracer(t *testing.T) (*Tracer, string) {
	t.Helper()
	tr, err := New(Options{})
	if err != nil {
		t.Skipf("fanotify unavailable in this sandbox: %v", err)
	}
	dir := t.TempDir()
	if err := tr.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, dir
}

func TestTracerLinuxCreateAndModify(t *testing.T) {
	tr, dir := newTestTracer(t)
	events := tr.GetEventsStream()

	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, Create, file)

	if err := os.WriteFile(file, []byte("hi there"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	waitForEvent(t, events, Modify, file)
}

func TestTracerLinuxDelete(t *testing.T) {
	tr, dir := newTestTracer(t)
	events := tr.GetEventsStream()

	file := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, Create, file)

	if err := os.Remove(file); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitForEvent(t, events, Delete, file)
}

func TestTracerLinuxRenamePairing(t *testing.T) {
	tr, dir := newTestTracer(t)
	events := tr.GetEventsStream()

	src := filepath.Join(dir, "old.txt")
	dst := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, Create, src)

	if err := os.Rename(src, dst); err != nil {
		t.Fatalf("rename: %v", err)
	}

	from := waitForEvent(t, events, MovedFrom, src)
	if from.Type.Peer != dst {
		t.Errorf("MovedFrom peer = %q, want %q", from.Type.Peer, dst)
	}
	to := waitForEvent(t, events, MovedTo, dst)
	if to.Type.Peer != src {
		t.Errorf("MovedTo peer = %q, want %q", to.Type.Peer, src)
	}
}

func TestTracerLinuxAutoMarksNewSubdirectory(t *testing.T) {
	tr, dir := newTestTracer(t)
	events := tr.GetEventsStream()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitForEvent(t, events, Create, sub)

	file := filepath.Join(sub, "c.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, Create, file)
}

func TestTracerLinuxCloseStopsStream(t *testing.T) {
	tr, _ := newTestTracer(t)
	events := tr.GetEventsStream()

	if !tr.Close() {
		t.Fatal("first Close() should return true")
	}
	if !tr.Close() {
		t.Fatal("second Close() should also return true: Close is idempotent")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected stream closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}
}

func TestTracerLinuxStartTwiceErrors(t *testing.T) {
	tr, _ := newTestTracer(t)
	if err := tr.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
}
