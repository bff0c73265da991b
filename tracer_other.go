//go:build !linux && !darwin

package fstrace

import (
	"fmt"
	"runtime"
)

// Tracer is the stub adapter for platforms with no fanotify or FSEvents
// backend.
type Tracer struct {
	tracerCore
}

// New always fails on unsupported platforms.
func New(opts Options) (*Tracer, error) {
	return nil, fmt.Errorf("fstrace: not supported on %s", runtime.GOOS)
}

func (t *Tracer) Watch(dir string) error { return fmt.Errorf("fstrace: not supported on %s", runtime.GOOS) }

func (t *Tracer) Start() error { return fmt.Errorf("fstrace: not supported on %s", runtime.GOOS) }

func (t *Tracer) Close() bool { return false }
