// ABOUTME: Sticky boolean flag for cross-thread resync requests
// ABOUTME: Set from any thread, test-and-cleared by a single consumer
package audio

import "sync/atomic"

// DirtyFlag is a sticky boolean. Any thread may Set it; one consumer calls
// Check once per period to test and clear it. A set lost between two
// consecutive checks is harmless because the consumer resyncs idempotently.
type DirtyFlag struct {
	v atomic.Bool
}

// Set marks the flag.
func (f *DirtyFlag) Set() {
	f.v.Store(true)
}

// Check returns whether the flag was set and clears it.
func (f *DirtyFlag) Check() bool {
	return f.v.Swap(false)
}

// IsSet returns the flag without clearing it.
func (f *DirtyFlag) IsSet() bool {
	return f.v.Load()
}
