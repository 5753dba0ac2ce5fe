// ABOUTME: Routes validated VBAN packets to per-stream listeners
// ABOUTME: Decodes payloads once and fans out by stream name
package receiver

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/vban"
)

// PacketRouter validates incoming datagrams and dispatches the decoded audio
// to stream listeners by stream name. One decode buffer is reused across
// packets; dispatch happens on the receive thread.
type PacketRouter struct {
	mu        sync.Mutex // guards listeners, buffers and errorMessage
	listeners []StreamListener
	buffers   [][]float32

	listenerCount  atomic.Int32
	correctPackets atomic.Int32
	errorMessage   string
}

// NewPacketRouter creates a router and subscribes it to the server.
func NewPacketRouter(server *UDPServer) *PacketRouter {
	r := &PacketRouter{}
	server.RegisterListener(r)
	return r
}

// RegisterStreamListener adds a listener for its stream name.
func (r *PacketRouter) RegisterStreamListener(l StreamListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
	r.listenerCount.Add(1)
}

// RemoveStreamListener removes a previously registered listener.
func (r *PacketRouter) RemoveStreamListener(l StreamListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, q := range r.listeners {
		if q == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			r.listenerCount.Add(-1)
			return
		}
	}
}

// StreamListenerCount returns the number of registered listeners.
func (r *PacketRouter) StreamListenerCount() int {
	return int(r.listenerCount.Load())
}

// SetLatency sets the playout pre-roll on every listener, in whole audio
// periods.
func (r *PacketRouter) SetLatency(buffers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		l.SetLatency(buffers)
	}
}

// ClearSpareBuffers forces a resync on every listener.
func (r *PacketRouter) ClearSpareBuffers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		l.ClearSpareBuffers()
	}
}

// HasErrors reports whether recent packets failed to reach every listener.
func (r *PacketRouter) HasErrors() bool {
	return r.correctPackets.Load() < r.listenerCount.Load()
}

// ErrorMessage returns the most recent error, or the empty string when
// packets are flowing correctly. Uses a try-lock so callers never stall the
// receive thread.
func (r *PacketRouter) ErrorMessage() string {
	if !r.HasErrors() {
		return ""
	}
	if !r.mu.TryLock() {
		return ""
	}
	defer r.mu.Unlock()
	return r.errorMessage
}

// PacketReceived validates one datagram and pushes its audio to every
// listener on the matching stream. Runs on the receive thread.
func (r *PacketRouter) PacketReceived(data []byte) {
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

	found := false
	for _, l := range r.listeners {
		if l.StreamName() != header.StreamName {
			continue
		}
		found = true

		if header.SampleRate() != l.SampleRate() {
			r.fail(fmt.Sprintf("%s: sample rate mismatch", header.StreamName))
			continue
		}

		r.resize(header.Channels, header.FramesPerPacket)
		if err := vban.DecodeInterleaved(payload, header, r.buffers); err != nil {
			r.fail(fmt.Sprintf("%s: %v", header.StreamName, err))
			continue
		}

		if err := l.PushBuffers(r.buffers); err != nil {
			r.fail(fmt.Sprintf("%s: %v", header.StreamName, err))
			continue
		}

		if r.correctPackets.Load() < r.listenerCount.Load() {
			r.correctPackets.Add(1)
		}
	}

	if !found {
		r.fail(fmt.Sprintf("stream name not found: %s", header.StreamName))
	}
}

// resize grows the shared decode buffers to the packet's dimensions.
func (r *PacketRouter) resize(channels, frames int) {
	if len(r.buffers) != channels {
		r.buffers = make([][]float32, channels)
	}
	for c := range r.buffers {
		if len(r.buffers[c]) != frames {
			r.buffers[c] = make([]float32, frames)
		}
	}
}

func (r *PacketRouter) fail(message string) {
	r.errorMessage = message
	r.correctPackets.Store(0)
}

var _ PacketListener = (*PacketRouter)(nil)
