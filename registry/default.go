package registry

import (
	"sync"
	"sync/atomic"
)

type process struct {
	reg  *Registry
	once sync.Once
	err  error
}

var current atomic.Pointer[process]

func init() { current.Store(&process{reg: New()}) }

// Default returns the process registry.
func Default() *Registry { return current.Load().reg }

// Init populates the process registry with fn and seals it. Only the first
// call runs fn; later calls return its result.
func Init(fn func(*Registry) error) error {
	p := current.Load()
	p.once.Do(func() {
		if p.err = fn(p.reg); p.err == nil {
			p.reg.Seal()
		}
	})
	return p.err
}

// Reset replaces the process registry with an empty one so Init runs again.
// It is meant for tests.
func Reset() { current.Store(&process{reg: New()}) }
