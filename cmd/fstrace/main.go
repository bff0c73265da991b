// Command fstrace prints filesystem change events for one or more
// directories, recursively, until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlvoller/fs-trace"
)

func exit(code int, msg string, a ...interface{}) {
	if msg != "" {
		fmt.Fprintf(os.Stderr, "fstrace: "+msg+"\n", a...)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: fstrace dir [dir ...]

Watch one or more directories recursively and print every change to
stdout, one event per line, until interrupted with Ctrl-C.
`)
}

func help() {
	usage()
	os.Exit(0)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		exit(2, "")
	}
	for _, a := range args {
		if a == "-h" || a == "--help" {
			help()
		}
	}

	t, err := fstrace.New(fstrace.Options{})
	if err != nil {
		exit(1, "new: %s", err)
	}

	for _, dir := range args {
		if err := t.Watch(dir); err != nil {
			exit(1, "watch %s: %s", dir, err)
		}
	}
	if err := t.Start(); err != nil {
		exit(1, "start: %s", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	events := t.GetEventsStream()
	for {
		select {
		case <-sig:
			t.Close()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev fstrace.FileSystemEvent) {
	now := time.Now().Format("15:04:05.000")
	if ev.Target == nil {
		fmt.Printf("%s  %-10s <no target>\n", now, ev.Type.Verb)
		return
	}
	if ev.Type.Peer != "" {
		fmt.Printf("%s  %-10s %-9s %s  (peer: %s)\n", now, ev.Type.Verb, ev.Target.Kind, ev.Target.Path, ev.Type.Peer)
		return
	}
	fmt.Printf("%s  %-10s %-9s %s\n", now, ev.Type.Verb, ev.Target.Kind, ev.Target.Path)
}
