// ABOUTME: Receiver façade wiring UDP ingress into the timeline buffer
// ABOUTME: Validates, decodes and writes packets; exposes the control surface
package receiver

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/vban"
)

// Receiver owns a TimelineBuffer and feeds it from a UDPServer. Each
// datagram is validated, decoded once into a reusable buffer and written at
// its timeline position. Streams must be added explicitly before their
// packets become audible.
type Receiver struct {
	manager *audio.NodeManager
	server  *UDPServer
	buffer  *TimelineBuffer

	mu      sync.Mutex // guards buffers and errorMessage
	buffers [][]float32

	correctPackets atomic.Int32
	errorMessage   string
}

// NewReceiver creates a receiver over the given server and registers it as a
// packet listener. capacity is the timeline storage per channel in samples;
// zero selects DefaultCapacity.
func NewReceiver(manager *audio.NodeManager, server *UDPServer, capacity int) *Receiver {
	r := &Receiver{
		manager: manager,
		server:  server,
		buffer:  NewTimelineBuffer(manager, capacity),
	}
	server.RegisterListener(r)
	return r
}

// Close detaches the receiver from the server and the audio graph.
func (r *Receiver) Close() {
	r.server.RemoveListener(r)
	r.manager.UnregisterProcess(r.buffer)
}

// Buffer returns the timeline buffer, for attaching TimelineReader nodes.
func (r *Receiver) Buffer() *TimelineBuffer {
	return r.buffer
}

// AddStream makes a named stream audible with the given channel count.
func (r *Receiver) AddStream(name string, channels int) {
	r.buffer.AddStream(name, channels)
}

// RemoveStream removes a named stream.
func (r *Receiver) RemoveStream(name string) {
	r.buffer.RemoveStream(name)
}

// SetStreamChannelCount resizes a stream's channel storage.
func (r *Receiver) SetStreamChannelCount(name string, channels int) {
	r.buffer.SetStreamChannelCount(name, channels)
}

// StreamCount returns the number of registered streams.
func (r *Receiver) StreamCount() int {
	return r.buffer.StreamCount()
}

// SetLatency pins playout latency to the given milliseconds.
func (r *Receiver) SetLatency(milliseconds float64) {
	r.buffer.SetLatency(milliseconds)
}

// CalibrateLatency switches to automatic latency growth.
func (r *Receiver) CalibrateLatency() {
	r.buffer.CalibrateLatency()
}

// Latency returns the current playout latency in milliseconds.
func (r *Receiver) Latency() float64 {
	return r.buffer.Latency()
}

// HasErrors reports whether recent packets failed validation or delivery.
func (r *Receiver) HasErrors() bool {
	return r.correctPackets.Load() == 0
}

// ErrorMessage returns the most recent error, or the empty string when
// packets are flowing correctly. Uses a try-lock so callers never stall the
// receive thread.
func (r *Receiver) ErrorMessage() string {
	if !r.HasErrors() {
		return ""
	}
	if !r.mu.TryLock() {
		return ""
	}
	defer r.mu.Unlock()
	return r.errorMessage
}

// PacketReceived validates one datagram and writes its audio into the
// timeline buffer. Runs on the receive thread.
func (r *Receiver) PacketReceived(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	header, err := vban.ParseHeader(data)
	if err != nil {
		r.fail(err.Error())
		return
	}
	payload := data[vban.HeaderSize:]
	if len(payload) != header.PayloadSize() {
		r.fail(fmt.Sprintf("%s: %v", header.StreamName, vban.ErrPayloadSize))
		return
	}
	if header.SampleRate() != r.manager.SampleRate() {
		r.fail(fmt.Sprintf("%s: %v", header.StreamName, vban.ErrSampleRateMismatch))
		return
	}

	r.resize(header.Channels, header.FramesPerPacket)
	if err := vban.DecodeInterleaved(payload, header, r.buffers); err != nil {
		r.fail(fmt.Sprintf("%s: %v", header.StreamName, err))
		return
	}

	if !r.buffer.Write(header.StreamName, header.Time(), r.buffers) {
		r.fail(fmt.Sprintf("%s: %v", header.StreamName, vban.ErrUnknownStream))
		return
	}

	r.errorMessage = ""
	if r.correctPackets.Load() == 0 {
		r.correctPackets.Store(1)
	}
}

// resize grows the shared decode buffers to the packet's dimensions.
func (r *Receiver) resize(channels, frames int) {
	if len(r.buffers) != channels {
		r.buffers = make([][]float32, channels)
	}
	for c := range r.buffers {
		if len(r.buffers[c]) != frames {
			r.buffers[c] = make([]float32, frames)
		}
	}
}

func (r *Receiver) fail(message string) {
	r.errorMessage = message
	r.correctPackets.Store(0)
}

var _ PacketListener = (*Receiver)(nil)
