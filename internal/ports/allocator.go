// Package ports hands out local TCP ports for preview sessions.
package ports

import (
	"net"
	"strconv"
	"sync/atomic"
)

const (
	DefaultBase       = 23627
	DefaultMaxRetries = 2
)

// ProbeFunc reports whether port can currently be bound on the loopback
// interface.
type ProbeFunc func(port int) bool

// Allocator walks a monotonically increasing candidate counter. It is safe
// for concurrent use; two callers never draw the same candidate.
type Allocator struct {
	next       atomic.Int64
	maxRetries int
	probe      ProbeFunc
}

func NewAllocator(base, maxRetries int) *Allocator {
	if base <= 0 {
		base = DefaultBase
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	a := &Allocator{maxRetries: maxRetries, probe: ListenProbe}
	a.next.Store(int64(base))
	return a
}

// WithProbe replaces the bind probe. Intended for tests.
func (a *Allocator) WithProbe(probe ProbeFunc) *Allocator {
	a.probe = probe
	return a
}

// Allocate returns the first candidate that binds. After maxRetries failed
// probes the last candidate is returned anyway; the preview server rejects
// it if it really is taken and the caller retries with fresh ports.
func (a *Allocator) Allocate() int {
	var port int
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		port = int(a.next.Add(1) - 1)
		if a.probe(port) {
			return port
		}
	}
	return port
}

// ListenProbe opens and immediately closes a listener on 127.0.0.1:port.
func ListenProbe(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
