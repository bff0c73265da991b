package fstrace

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := newBroadcaster()
	defer b.close()

	s1 := b.subscribe()
	s2 := b.subscribe()
	defer b.unsubscribe(s1)
	defer b.unsubscribe(s2)

	ev := FileSystemEvent{Type: simpleEventType(Create)}
	if err := b.send(ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, s := range []*broadcastSub{s1, s2} {
		select {
		case got := <-s.events:
			if got.Type.Verb != Create {
				t.Errorf("got verb %v, want Create", got.Type.Verb)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}
}

func TestBroadcasterDropsOldestWhenFull(t *testing.T) {
	b := newBroadcaster()
	defer b.close()

	s := b.subscribe()
	defer b.unsubscribe(s)

	for i := 0; i < broadcastCapacity+5; i++ {
		if err := b.send(FileSystemEvent{Type: simpleEventType(Modify)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if got := atomic.LoadUint64(&s.dropped); got == 0 {
		t.Error("expected some events to be marked dropped once the buffer filled")
	}
	if len(s.events) != broadcastCapacity {
		t.Errorf("subscriber buffer len = %d, want %d", len(s.events), broadcastCapacity)
	}
}

func TestBroadcasterSendAfterCloseErrors(t *testing.T) {
	b := newBroadcaster()
	b.close()

	if err := b.send(FileSystemEvent{}); err != ErrStreamClosed {
		t.Errorf("send after close = %v, want ErrStreamClosed", err)
	}
}

func TestBroadcasterSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := newBroadcaster()
	b.close()

	s := b.subscribe()
	select {
	case _, ok := <-s.events:
		if ok {
			t.Error("expected closed channel for subscriber joining after close")
		}
	default:
		t.Error("expected subscribe-after-close channel to be immediately closed")
	}
}

func TestCancelToken(t *testing.T) {
	c := newCancelToken()
	if c.IsCancelled() {
		t.Fatal("new token reports cancelled")
	}

	c.Cancel()
	c.Cancel() // must not panic on double-cancel

	if !c.IsCancelled() {
		t.Fatal("token should report cancelled")
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed")
	}
}
