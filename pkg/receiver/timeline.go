// ABOUTME: Multi-stream circular buffer indexed by absolute sample time
// ABOUTME: Drift-compensated read head shared across all streams
package receiver

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/audio"
)

const (
	// DefaultCapacity is the per-channel circular storage size in samples.
	DefaultCapacity = 8192

	// MaxLatencySamples caps the drift-compensated latency in calibration mode.
	MaxLatencySamples = 2048
)

// streamSlot holds one stream's per-channel circular storage. The mutex
// guards resizing; the audio read path only try-locks it.
type streamSlot struct {
	mu   sync.Mutex
	data [][]float32
}

// TimelineBuffer is a multi-stream sample buffer indexed by absolute sample
// time. The receive thread writes decoded frames at their timeline position,
// the audio thread reads one period behind the write head, and the read head
// is recomputed from the write head whenever the two drift apart.
//
// A single write position and read position are shared by all streams, so
// streams on the same buffer play out sample-aligned.
type TimelineBuffer struct {
	manager  *audio.NodeManager
	capacity int

	streamsMu sync.Mutex // guards structural changes to streams
	streams   atomic.Pointer[map[string]*streamSlot]

	writePosition     atomic.Int64 // receive thread owned
	readPosition      atomic.Int64 // audio thread owned, may go negative
	lastWritePosition int64        // audio thread only

	latencySamples       atomic.Int32
	manualLatencySamples atomic.Int32
	manualLatency        atomic.Bool
	resetFlag            audio.DirtyFlag

	logCountdown int // audio thread only
}

// NewTimelineBuffer creates a timeline buffer with the given per-channel
// capacity in samples. Zero capacity selects DefaultCapacity. The buffer
// registers itself as a root process on the manager so its drift policy runs
// once per audio period before any readers.
func NewTimelineBuffer(manager *audio.NodeManager, capacity int) *TimelineBuffer {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	b := &TimelineBuffer{
		manager:  manager,
		capacity: capacity,
	}
	empty := map[string]*streamSlot{}
	b.streams.Store(&empty)
	b.resetFlag.Set()
	manager.RegisterProcess(b)
	return b
}

// AddStream allocates storage for a named stream and resets the timeline.
// Called from the control thread.
func (b *TimelineBuffer) AddStream(name string, channels int) {
	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()

	slot := &streamSlot{data: make([][]float32, channels)}
	for c := range slot.data {
		slot.data[c] = make([]float32, b.capacity)
	}

	next := b.copyStreams()
	next[name] = slot
	b.streams.Store(&next)

	b.writePosition.Store(0)
	b.readPosition.Store(0)
	b.resetFlag.Set()
}

// RemoveStream removes a named stream. Called from the control thread.
func (b *TimelineBuffer) RemoveStream(name string) {
	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()

	next := b.copyStreams()
	delete(next, name)
	b.streams.Store(&next)
}

// SetStreamChannelCount resizes a stream's channel storage if it differs
// from the current count. Called from the control thread.
func (b *TimelineBuffer) SetStreamChannelCount(name string, channels int) {
	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()

	slot, ok := (*b.streams.Load())[name]
	if !ok {
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if len(slot.data) == channels {
		return
	}
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, b.capacity)
	}
	slot.data = data
}

// StreamCount returns the number of registered streams.
func (b *TimelineBuffer) StreamCount() int {
	return len(*b.streams.Load())
}

// HasStream reports whether a named stream is registered.
func (b *TimelineBuffer) HasStream(name string) bool {
	_, ok := (*b.streams.Load())[name]
	return ok
}

// SetLatency pins the playout latency to the given value in milliseconds and
// restarts the timeline.
func (b *TimelineBuffer) SetLatency(milliseconds float64) {
	samples := int32(milliseconds * b.manager.SamplesPerMillisecond())
	b.manualLatencySamples.Store(samples)
	b.manualLatency.Store(true)
	b.resetFlag.Set()
}

// CalibrateLatency switches to automatic latency growth and restarts the
// timeline.
func (b *TimelineBuffer) CalibrateLatency() {
	b.manualLatency.Store(false)
	b.resetFlag.Set()
}

// Latency returns the current drift-compensated latency in milliseconds.
func (b *TimelineBuffer) Latency() float64 {
	return float64(b.latencySamples.Load()) / b.manager.SamplesPerMillisecond()
}

// Reset restarts the timeline on the next audio period.
func (b *TimelineBuffer) Reset() {
	b.resetFlag.Set()
}

// Write stores one packet's worth of decoded frames at the given timeline
// position. frames is channel-planar with framesPerPacket samples per
// channel. Returns false when the stream is unknown; senders become audible
// only after the control thread adds them. Called from the receive thread.
func (b *TimelineBuffer) Write(name string, time int64, frames [][]float32) bool {
	b.streamsMu.Lock()
	slot, ok := (*b.streams.Load())[name]
	b.streamsMu.Unlock()
	if !ok {
		return false
	}

	slot.mu.Lock()
	if len(frames) == len(slot.data) {
		count := len(frames[0])
		pos := int(time % int64(b.capacity))
		for i := 0; i < count; i++ {
			for c := range frames {
				slot.data[c][pos] = frames[c][i]
			}
			pos++
			if pos >= b.capacity {
				pos = 0
			}
		}
	}
	slot.mu.Unlock()

	write := b.writePosition.Load()
	if time > write {
		b.writePosition.Store(time)
	}
	if time == 0 && write != 0 {
		// Sender restarted its frame counter.
		b.writePosition.Store(0)
		b.resetFlag.Set()
	}
	return true
}

// Process runs the drift policy once per audio period. The read head is
// always recomputed from the write head so jitter in either direction is
// absorbed; in calibration mode the latency grows by one period each time
// the reader would underflow, capped at MaxLatencySamples.
func (b *TimelineBuffer) Process() {
	bufferSize := int64(b.manager.BufferSize())
	write := b.writePosition.Load()

	if b.resetFlag.Check() {
		var latency int32
		if b.manualLatency.Load() {
			latency = b.manualLatencySamples.Load()
		} else {
			latency = int32(2 * bufferSize)
		}
		b.latencySamples.Store(latency)
		b.readPosition.Store(write - int64(latency))
		b.lastWritePosition = write
		return
	}

	read := b.readPosition.Load() + bufferSize

	b.logCountdown -= int(bufferSize)
	if b.logCountdown <= 0 {
		b.logCountdown = b.manager.SampleRate()
		log.Printf("Stream latency: %d samples", write-read)
	}

	if read+bufferSize > write {
		if write == b.lastWritePosition {
			// Writer stalled; hold position without growing latency.
			read = write - int64(b.latencySamples.Load())
		} else {
			b.growLatency(bufferSize)
			read = write - int64(b.latencySamples.Load())
		}
	} else if write-read > 2*int64(b.latencySamples.Load()) {
		// Writer jumped ahead, e.g. a sender restart with a non-zero counter.
		b.growLatency(bufferSize)
		read = write - int64(b.latencySamples.Load())
	}

	b.readPosition.Store(read)
	b.lastWritePosition = write
}

func (b *TimelineBuffer) growLatency(bufferSize int64) {
	if b.manualLatency.Load() {
		return
	}
	latency := b.latencySamples.Load()
	if latency < MaxLatencySamples {
		b.latencySamples.Store(latency + int32(bufferSize))
	}
}

// Read copies one period of a stream channel at the current read position
// into out, zeroing the source samples as they are consumed so stale data
// from a previous wrap is never replayed. Emits silence while the read
// position is negative after a reset. Called from the audio thread.
func (b *TimelineBuffer) Read(name string, channel int, out []float32) {
	read := b.readPosition.Load()
	if read < 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	slot, ok := (*b.streams.Load())[name]
	if !ok {
		return
	}
	if !slot.mu.TryLock() {
		// A resize is in progress; skip this period rather than block.
		return
	}
	defer slot.mu.Unlock()

	if channel >= len(slot.data) {
		return
	}
	src := slot.data[channel]
	pos := int(read % int64(b.capacity))
	for i := range out {
		out[i] = src[pos]
		src[pos] = 0
		pos++
		if pos >= b.capacity {
			pos = 0
		}
	}
}

// SampleRateChanged restarts the timeline for the new device rate.
func (b *TimelineBuffer) SampleRateChanged(int) {
	b.resetFlag.Set()
}

// BufferSizeChanged restarts the timeline for the new period size.
func (b *TimelineBuffer) BufferSizeChanged(int) {
	b.resetFlag.Set()
}

// copyStreams clones the stream map; caller holds streamsMu.
func (b *TimelineBuffer) copyStreams() map[string]*streamSlot {
	old := *b.streams.Load()
	next := make(map[string]*streamSlot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	return next
}
