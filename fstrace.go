// Package fstrace provides a cross-platform recursive filesystem
// change-notification engine.
//
// A caller registers one or more directories on a [Tracer] and consumes a
// unified, lazy sequence of semantic events (Create, Modify, Delete, Move,
// MovedFrom, MovedTo, Unknown) through [Tracer.GetEventsStream]. Internally
// a Linux build is driven by fanotify plus epoll, and a Darwin build is
// driven by FSEvents; both funnel into the same broadcast channel and the
// same event shape.
package fstrace

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// debug enables verbose diagnostic output to stderr. Set FSTRACE_DEBUG=1 in
// the environment to enable it.
var debug = func() bool {
	b, _ := strconv.ParseBool(os.Getenv("FSTRACE_DEBUG"))
	return b
}()

// logf writes a timestamped diagnostic line to stderr. Only called when
// debug is true.
func logf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "FSTRACE_DEBUG: %s  "+format+"\n",
		append([]interface{}{time.Now().Format("15:04:05.000000000")}, a...)...)
}

// Options configures a [Tracer]. It is currently empty and reserved for
// future tuning (buffer sizes, mark masks, etc.); New accepts it by value
// so additional fields can be added without breaking callers that pass a
// zero Options{}.
type Options struct{}
