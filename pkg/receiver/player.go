// ABOUTME: Queue-based stream playback with per-channel routing
// ABOUTME: One mono SampleQueuePlayer per routed channel, fed by a PacketRouter
package receiver

import (
	"fmt"

	"github.com/4dsound/vban-go/pkg/audio"
)

// StreamListener handles decoded audio for one named stream. Implementations
// receive channel-planar buffers on the network thread.
type StreamListener interface {
	// StreamName returns the stream this listener accepts.
	StreamName() string

	// SampleRate returns the rate the listener plays at; packets with a
	// different rate are rejected before delivery.
	SampleRate() int

	// PushBuffers delivers one packet of channel-planar audio.
	PushBuffers(buffers [][]float32) error

	// SetLatency sets the playout pre-roll in whole audio periods.
	SetLatency(buffers int)

	// ClearSpareBuffers drops queued audio and rebuilds the pre-roll.
	ClearSpareBuffers()
}

// StreamPlayer plays one stream through per-channel sample queues. Channel
// routing maps each output pin to a source channel in the incoming stream; a
// routing of {0, 1} plays a stereo stream as-is. The player is a single
// output node so pin N lands on device channel N.
type StreamPlayer struct {
	manager    *audio.NodeManager
	streamName string
	routing    []int
	players    []*SampleQueuePlayer
}

// NewStreamPlayer creates a player for the named stream and registers it on
// the manager. Each routing entry selects the incoming stream channel
// feeding that output pin.
func NewStreamPlayer(manager *audio.NodeManager, streamName string, routing []int) *StreamPlayer {
	p := &StreamPlayer{
		manager:    manager,
		streamName: streamName,
		routing:    routing,
	}
	for range routing {
		p.players = append(p.players, NewSampleQueuePlayer(manager, 1, 1))
	}
	manager.RegisterOutput(p)
	return p
}

// Close unregisters the player from the manager.
func (p *StreamPlayer) Close() {
	p.manager.UnregisterOutput(p)
}

// StreamName returns the stream this player accepts.
func (p *StreamPlayer) StreamName() string {
	return p.streamName
}

// SampleRate returns the device sample rate the player runs at.
func (p *StreamPlayer) SampleRate() int {
	return p.manager.SampleRate()
}

// ChannelCount returns the number of routed output channels.
func (p *StreamPlayer) ChannelCount() int {
	return len(p.routing)
}

// PushBuffers queues one packet of channel-planar audio onto the per-channel
// players. Called from the network thread.
func (p *StreamPlayer) PushBuffers(buffers [][]float32) error {
	if len(buffers) < len(p.routing) {
		return fmt.Errorf("received %d channels but expected %d", len(buffers), len(p.routing))
	}
	for i, player := range p.players {
		player.QueueInterleaved(buffers[p.routing[i]])
	}
	return nil
}

// SetLatency sets the spare pre-roll on every channel player.
func (p *StreamPlayer) SetLatency(buffers int) {
	for _, player := range p.players {
		player.SetSpareLatency(buffers)
	}
}

// ClearSpareBuffers forces a resync on every channel player.
func (p *StreamPlayer) ClearSpareBuffers() {
	for _, player := range p.players {
		player.Clear()
	}
}

// Process advances every channel queue by one period. Runs on the audio
// callback thread.
func (p *StreamPlayer) Process() {
	for _, player := range p.players {
		player.Process()
	}
}

// OutputChannels returns the number of routed output pins.
func (p *StreamPlayer) OutputChannels() int {
	return len(p.players)
}

// OutputBuffer returns the pin buffer for a routed channel.
func (p *StreamPlayer) OutputBuffer(channel int) []float32 {
	return p.players[channel].OutputBuffer(0)
}

// SampleRateChanged forwards the new device rate to every channel queue.
func (p *StreamPlayer) SampleRateChanged(sampleRate int) {
	for _, player := range p.players {
		player.SampleRateChanged(sampleRate)
	}
}

// BufferSizeChanged forwards the new period size to every channel queue.
func (p *StreamPlayer) BufferSizeChanged(bufferSize int) {
	for _, player := range p.players {
		player.BufferSizeChanged(bufferSize)
	}
}

var _ StreamListener = (*StreamPlayer)(nil)
var _ audio.OutputNode = (*StreamPlayer)(nil)
