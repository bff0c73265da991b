package fstrace

import "sync/atomic"

// GetEventsStream returns a lazy, cancellable, finite sequence of events.
// Each call opens an independent subscription against the tracer's
// broadcast sink, so multiple concurrent streams are permitted; a single
// stream is meant for single-consumer use.
//
// The returned channel closes promptly after Close, or once the adapter's
// broadcast sink itself closes. A subscriber that falls behind silently
// drops the oldest buffered events instead of terminating the stream.
func (t *tracerCore) GetEventsStream() <-chan FileSystemEvent {
	sub := t.events.subscribe()
	out := make(chan FileSystemEvent)

	go func() {
		defer close(out)
		defer t.events.unsubscribe(sub)

		for {
			// A lagged subscriber has already had its oldest entries
			// evicted at send time; this just walks the drop count down
			// without blocking, matching "on Lagged, skip and continue".
			if swapped := atomic.SwapUint64(&sub.dropped, 0); swapped > 0 {
				if debug {
					logf("stream: subscriber lagged, dropped %d event(s)", swapped)
				}
			}

			select {
			case <-t.cancel.Done():
				return
			case ev, ok := <-sub.events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-t.cancel.Done():
					return
				}
			}
		}
	}()

	return out
}

// tracerCore is the state every platform adapter shares: the broadcast
// sink and the cancellation token. Each platform's Tracer embeds it so
// GetEventsStream and the cancellation bookkeeping are written once.
type tracerCore struct {
	events *broadcaster
	cancel *cancelToken
}

func newTracerCore() tracerCore {
	return tracerCore{events: newBroadcaster(), cancel: newCancelToken()}
}
