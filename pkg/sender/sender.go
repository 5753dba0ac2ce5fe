// ABOUTME: Audio-graph node that encodes callback output into VBAN packets
// ABOUTME: Accumulates whole packets, quantizes and hands them to the client
package sender

import (
	"log"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/vban"
)

// SenderNode pulls its input nodes once per audio period, accumulates their
// output into packet-sized frame groups and submits encoded VBAN datagrams
// to a Client. Register it as a root process; the inputs are processed by
// the node itself and must not also be registered on the manager.
type SenderNode struct {
	manager    *audio.NodeManager
	client     *Client
	streamName string
	bitDepth   int

	active atomic.Bool

	inputs          []audio.OutputNode
	framesPerPacket int
	srIndex         uint8
	srValid         bool

	accum        [][]float32
	accumFrames  int
	frameCounter uint32
	scratch      []byte
}

// NewSenderNode creates a sender for the given stream name. bitDepth selects
// the wire sample width, 16 or 32.
func NewSenderNode(manager *audio.NodeManager, client *Client, streamName string, bitDepth int) *SenderNode {
	if bitDepth != 32 {
		bitDepth = 16
	}
	s := &SenderNode{
		manager:    manager,
		client:     client,
		streamName: streamName,
		bitDepth:   bitDepth,
		scratch:    make([]byte, 0, vban.MaxDataSize),
	}
	s.SampleRateChanged(manager.SampleRate())
	return s
}

// AddInput connects an audio node whose output is streamed. Call before
// registering the sender on the manager.
func (s *SenderNode) AddInput(n audio.OutputNode) {
	s.inputs = append(s.inputs, n)
	s.reconfigure()
}

// SetActive starts or stops packet emission. A restart resets the frame
// counter so receivers observe a stream restart.
func (s *SenderNode) SetActive(active bool) {
	if active && !s.active.Load() {
		s.frameCounter = 0
		s.accumFrames = 0
	}
	s.active.Store(active)
}

// Process pulls one period from every input and emits any completed packets.
// Runs on the audio callback thread.
func (s *SenderNode) Process() {
	if !s.active.Load() || !s.srValid || len(s.inputs) == 0 {
		return
	}

	channels := 0
	for _, in := range s.inputs {
		in.Process()
		channels += in.OutputChannels()
	}
	if channels != len(s.accum) {
		return
	}

	bufferSize := s.manager.BufferSize()
	for i := 0; i < bufferSize; i++ {
		c := 0
		for _, in := range s.inputs {
			for p := 0; p < in.OutputChannels(); p++ {
				s.accum[c][s.accumFrames] = in.OutputBuffer(p)[i]
				c++
			}
		}
		s.accumFrames++
		if s.accumFrames == s.framesPerPacket {
			s.emit()
		}
	}
}

// emit encodes the accumulated frames into one datagram and submits it.
func (s *SenderNode) emit() {
	header := vban.Header{
		SampleRateIndex: s.srIndex,
		FramesPerPacket: s.framesPerPacket,
		Channels:        len(s.accum),
		BitDepth:        s.bitDepth,
		StreamName:      s.streamName,
		FrameCounter:    s.frameCounter,
	}

	s.scratch = header.AppendTo(s.scratch[:0])
	payloadSize := header.PayloadSize()
	s.scratch = s.scratch[:vban.HeaderSize+payloadSize]
	if err := vban.EncodeInterleaved(s.accum, header, s.scratch[vban.HeaderSize:]); err != nil {
		s.accumFrames = 0
		return
	}

	packet := make([]byte, len(s.scratch))
	copy(packet, s.scratch)
	s.client.Send(packet)

	s.frameCounter++
	s.accumFrames = 0
}

// SampleRateChanged recomputes the wire sample rate index. Unsupported
// device rates suspend emission.
func (s *SenderNode) SampleRateChanged(sampleRate int) {
	index, ok := vban.SampleRateIndex(sampleRate)
	if !ok {
		log.Printf("Sample rate %d not representable in VBAN, sender idle", sampleRate)
		s.srValid = false
		return
	}
	s.srIndex = index
	s.srValid = true
	s.accumFrames = 0
	s.frameCounter = 0
}

// BufferSizeChanged discards any partial packet.
func (s *SenderNode) BufferSizeChanged(int) {
	s.accumFrames = 0
}

// reconfigure sizes the accumulator for the current channel count so each
// packet stays within the VBAN payload limit.
func (s *SenderNode) reconfigure() {
	channels := 0
	for _, in := range s.inputs {
		channels += in.OutputChannels()
	}
	if channels == 0 {
		s.accum = nil
		return
	}

	sampleSize := s.bitDepth / 8
	frames := vban.MaxPayloadSize / (channels * sampleSize)
	if frames > vban.MaxFramesPerPacket {
		frames = vban.MaxFramesPerPacket
	}
	s.framesPerPacket = frames

	s.accum = make([][]float32, channels)
	for c := range s.accum {
		s.accum[c] = make([]float32, frames)
	}
	s.accumFrames = 0
}

var _ audio.Process = (*SenderNode)(nil)
