// ABOUTME: Callback-driven audio graph engine
// ABOUTME: NodeManager invokes root processes and mixes output nodes each audio period
package audio

import (
	"sync"
	"sync/atomic"
)

// Process is work executed once per audio period on the audio callback
// thread. Implementations must not block or allocate.
type Process interface {
	Process()
}

// OutputNode is a Process that produces per-channel audio for the device.
// After Process returns, OutputBuffer(c) holds BufferSize samples for each
// channel c below OutputChannels.
type OutputNode interface {
	Process
	OutputChannels() int
	OutputBuffer(channel int) []float32
}

// SampleRateListener is implemented by processes that need to react to a
// device sample rate change.
type SampleRateListener interface {
	SampleRateChanged(sampleRate int)
}

// BufferSizeListener is implemented by processes that need to react to a
// device buffer size change.
type BufferSizeListener interface {
	BufferSizeChanged(bufferSize int)
}

// NodeManager owns the audio graph and drives it from the device callback.
// Root processes run first each period, then output nodes are processed and
// their pins mixed into the device channels. Registration is copy-on-write so
// the callback never takes a lock.
type NodeManager struct {
	sampleRate atomic.Int64
	bufferSize atomic.Int64

	mu        sync.Mutex // guards registration, not the callback
	processes atomic.Pointer[[]Process]
	outputs   atomic.Pointer[[]OutputNode]
}

// NewNodeManager creates a node manager for the given device format.
func NewNodeManager(sampleRate, bufferSize int) *NodeManager {
	m := &NodeManager{}
	m.sampleRate.Store(int64(sampleRate))
	m.bufferSize.Store(int64(bufferSize))
	empty := []Process{}
	m.processes.Store(&empty)
	emptyOut := []OutputNode{}
	m.outputs.Store(&emptyOut)
	return m
}

// SampleRate returns the device sample rate in Hz.
func (m *NodeManager) SampleRate() int {
	return int(m.sampleRate.Load())
}

// BufferSize returns the device period size in frames.
func (m *NodeManager) BufferSize() int {
	return int(m.bufferSize.Load())
}

// SamplesPerMillisecond returns the number of frames per millisecond.
func (m *NodeManager) SamplesPerMillisecond() float64 {
	return float64(m.SampleRate()) / 1000.0
}

// RegisterProcess adds a root process invoked once per audio period.
func (m *NodeManager) RegisterProcess(p Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := *m.processes.Load()
	next := make([]Process, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, p)
	m.processes.Store(&next)
}

// UnregisterProcess removes a previously registered root process.
func (m *NodeManager) UnregisterProcess(p Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := *m.processes.Load()
	next := make([]Process, 0, len(old))
	for _, q := range old {
		if q != p {
			next = append(next, q)
		}
	}
	m.processes.Store(&next)
}

// RegisterOutput adds an output node whose channels are mixed into the
// device buffers each period.
func (m *NodeManager) RegisterOutput(n OutputNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := *m.outputs.Load()
	next := make([]OutputNode, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, n)
	m.outputs.Store(&next)
}

// UnregisterOutput removes a previously registered output node.
func (m *NodeManager) UnregisterOutput(n OutputNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := *m.outputs.Load()
	next := make([]OutputNode, 0, len(old))
	for _, q := range old {
		if q != n {
			next = append(next, q)
		}
	}
	m.outputs.Store(&next)
}

// ProcessCallback runs one audio period. out holds one buffer of BufferSize
// samples per device channel; buffers are zeroed, processes run, and output
// node channels are summed in, wrapping over the device channels when a node
// has more channels than the device. Runs on the audio callback thread.
func (m *NodeManager) ProcessCallback(out [][]float32) {
	for _, buf := range out {
		for i := range buf {
			buf[i] = 0
		}
	}

	for _, p := range *m.processes.Load() {
		p.Process()
	}

	deviceChannels := len(out)
	if deviceChannels == 0 {
		return
	}

	for _, n := range *m.outputs.Load() {
		n.Process()
		for c := 0; c < n.OutputChannels(); c++ {
			src := n.OutputBuffer(c)
			dst := out[c%deviceChannels]
			for i := range dst {
				if i >= len(src) {
					break
				}
				dst[i] += src[i]
			}
		}
	}
}

// SetSampleRate updates the device sample rate and notifies listeners.
func (m *NodeManager) SetSampleRate(sampleRate int) {
	m.sampleRate.Store(int64(sampleRate))
	m.notify(func(p any) {
		if l, ok := p.(SampleRateListener); ok {
			l.SampleRateChanged(sampleRate)
		}
	})
}

// SetBufferSize updates the device period size and notifies listeners.
func (m *NodeManager) SetBufferSize(bufferSize int) {
	m.bufferSize.Store(int64(bufferSize))
	m.notify(func(p any) {
		if l, ok := p.(BufferSizeListener); ok {
			l.BufferSizeChanged(bufferSize)
		}
	})
}

func (m *NodeManager) notify(fn func(any)) {
	for _, p := range *m.processes.Load() {
		fn(p)
	}
	for _, n := range *m.outputs.Load() {
		fn(n)
	}
}
