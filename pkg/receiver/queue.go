// ABOUTME: Lock-free sample queue with spare-latency pre-roll playout
// ABOUTME: Alternate receive path for senders without a shared timeline
package receiver

import (
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/audio"
)

// floatQueue is a single-producer single-consumer ring of float32 samples.
// The producer only advances tail, the consumer only advances head.
type floatQueue struct {
	buf  []float32
	mask int64
	head atomic.Int64
	tail atomic.Int64
}

// newFloatQueue creates a queue holding at least capacity samples, rounded
// up to a power of two.
func newFloatQueue(capacity int) *floatQueue {
	size := int64(1)
	for size < int64(capacity) {
		size <<= 1
	}
	return &floatQueue{
		buf:  make([]float32, size),
		mask: size - 1,
	}
}

// size returns the number of queued samples. Approximate when called
// concurrently with push or pop, exact from either endpoint's own thread.
func (q *floatQueue) size() int {
	return int(q.tail.Load() - q.head.Load())
}

// push appends samples. Returns false without enqueueing anything when the
// ring lacks room for the whole batch. Producer thread only.
func (q *floatQueue) push(samples []float32) bool {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail-head+int64(len(samples)) > int64(len(q.buf)) {
		return false
	}
	for _, v := range samples {
		q.buf[tail&q.mask] = v
		tail++
	}
	q.tail.Store(tail)
	return true
}

// pop removes len(out) samples into out. Returns false without dequeueing
// anything when fewer samples are queued. Consumer thread only.
func (q *floatQueue) pop(out []float32) bool {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail-head < int64(len(out)) {
		return false
	}
	for i := range out {
		out[i] = q.buf[head&q.mask]
		head++
	}
	q.head.Store(head)
	return true
}

// drain discards all queued samples. Consumer thread only.
func (q *floatQueue) drain() {
	q.head.Store(q.tail.Load())
}

// DefaultMaxQueueBuffers bounds the queue to this many audio periods.
const DefaultMaxQueueBuffers = 64

// SampleQueuePlayer plays interleaved samples pushed from the network thread
// through a lock-free queue. Without a shared timeline the only available
// signal is queue depth: playback starts once a spare reserve of whole
// periods is queued, and an underflow silences output until the reserve is
// rebuilt.
type SampleQueuePlayer struct {
	manager  *audio.NodeManager
	channels int

	queue           *floatQueue
	maxQueueBuffers atomic.Int32

	spareLatencyBuffers atomic.Int32 // requested by control thread
	appliedSpareBuffers int32        // audio thread owned
	spareLatencySamples int          // audio thread owned
	savingSpare         bool         // audio thread owned
	clearFlag           audio.DirtyFlag

	pins        [][]float32
	interleaved []float32
}

// NewSampleQueuePlayer creates a player with the given channel count and
// spare latency in whole audio periods.
func NewSampleQueuePlayer(manager *audio.NodeManager, channels, spareLatencyBuffers int) *SampleQueuePlayer {
	p := &SampleQueuePlayer{
		manager:  manager,
		channels: channels,
	}
	p.maxQueueBuffers.Store(DefaultMaxQueueBuffers)
	p.spareLatencyBuffers.Store(int32(spareLatencyBuffers))
	p.allocate(manager.BufferSize())
	return p
}

func (p *SampleQueuePlayer) allocate(bufferSize int) {
	p.queue = newFloatQueue(int(p.maxQueueBuffers.Load()) * bufferSize * p.channels)
	p.pins = make([][]float32, p.channels)
	for c := range p.pins {
		p.pins[c] = make([]float32, bufferSize)
	}
	p.interleaved = make([]float32, bufferSize*p.channels)
}

// SetMaxQueueBuffers bounds the queue depth in whole audio periods. Pushes
// beyond the bound are dropped and force a resync.
func (p *SampleQueuePlayer) SetMaxQueueBuffers(buffers int) {
	p.maxQueueBuffers.Store(int32(buffers))
}

// SetSpareLatency requests a new spare reserve in whole audio periods. The
// audio thread applies it on its next period.
func (p *SampleQueuePlayer) SetSpareLatency(buffers int) {
	p.spareLatencyBuffers.Store(int32(buffers))
}

// Clear forces a resync: the queue is drained and playback restarts after
// the spare reserve refills.
func (p *SampleQueuePlayer) Clear() {
	p.clearFlag.Set()
}

// QueueSamples enqueues channel-planar frames, interleaving them frame-major.
// When the queue is over its depth bound the batch is dropped and a full
// resync is forced. Called from the network thread.
func (p *SampleQueuePlayer) QueueSamples(frames [][]float32) {
	if len(frames) != p.channels || len(frames) == 0 {
		return
	}
	bufferSize := p.manager.BufferSize()
	limit := int(p.maxQueueBuffers.Load()) * bufferSize * p.channels
	count := len(frames[0])

	if p.queue.size() >= limit {
		p.clearFlag.Set()
		return
	}

	scratch := make([]float32, count*p.channels)
	for i := 0; i < count; i++ {
		for c := range frames {
			scratch[i*p.channels+c] = frames[c][i]
		}
	}
	if !p.queue.push(scratch) {
		p.clearFlag.Set()
	}
}

// QueueInterleaved enqueues already interleaved samples. Called from the
// network thread.
func (p *SampleQueuePlayer) QueueInterleaved(samples []float32) {
	bufferSize := p.manager.BufferSize()
	limit := int(p.maxQueueBuffers.Load()) * bufferSize * p.channels

	if p.queue.size() >= limit || !p.queue.push(samples) {
		p.clearFlag.Set()
	}
}

// QueuedSamples returns the current queue depth in samples across all
// channels.
func (p *SampleQueuePlayer) QueuedSamples() int {
	return p.queue.size()
}

// Process emits one period. Runs on the audio callback thread.
func (p *SampleQueuePlayer) Process() {
	bufferSize := p.manager.BufferSize()

	cleared := p.clearFlag.Check()
	requested := p.spareLatencyBuffers.Load()
	if requested != p.appliedSpareBuffers || cleared {
		p.appliedSpareBuffers = requested
		p.spareLatencySamples = int(requested) * bufferSize
		p.savingSpare = true
		if cleared {
			p.queue.drain()
		}
		p.silence()
		return
	}

	if p.savingSpare {
		if p.queue.size() < (bufferSize+p.spareLatencySamples)*p.channels {
			p.silence()
			return
		}
		p.savingSpare = false
	}

	need := bufferSize * p.channels
	if p.queue.size() <= need || !p.queue.pop(p.interleaved[:need]) {
		p.savingSpare = true
		p.silence()
		return
	}

	for c := 0; c < p.channels; c++ {
		pin := p.pins[c]
		for i := 0; i < bufferSize; i++ {
			pin[i] = p.interleaved[i*p.channels+c]
		}
	}
}

func (p *SampleQueuePlayer) silence() {
	for _, pin := range p.pins {
		for i := range pin {
			pin[i] = 0
		}
	}
}

// OutputChannels returns the number of output pins.
func (p *SampleQueuePlayer) OutputChannels() int {
	return p.channels
}

// OutputBuffer returns the pin buffer for a channel.
func (p *SampleQueuePlayer) OutputBuffer(channel int) []float32 {
	return p.pins[channel]
}

// SampleRateChanged forces a resync at the new device rate.
func (p *SampleQueuePlayer) SampleRateChanged(int) {
	p.clearFlag.Set()
}

// BufferSizeChanged reallocates for the new period size and forces a resync.
func (p *SampleQueuePlayer) BufferSizeChanged(bufferSize int) {
	p.allocate(bufferSize)
	p.clearFlag.Set()
}

var _ audio.OutputNode = (*SampleQueuePlayer)(nil)
