// ABOUTME: Audio-graph node pulling stream channels from a TimelineBuffer
// ABOUTME: One output pin per stream channel, filled at the shared read head
package receiver

import "github.com/4dsound/vban-go/pkg/audio"

// TimelineReader is an output node that reads one stream from a
// TimelineBuffer at the buffer's current read position. It holds a
// non-owning reference to the buffer; the buffer must outlive the reader.
type TimelineReader struct {
	buffer     *TimelineBuffer
	streamName string
	pins       [][]float32
}

// NewTimelineReader creates a reader for the named stream with the given
// channel count. Register it on the node manager to make it audible.
func NewTimelineReader(buffer *TimelineBuffer, streamName string, channels int) *TimelineReader {
	r := &TimelineReader{
		buffer:     buffer,
		streamName: streamName,
		pins:       make([][]float32, channels),
	}
	bufferSize := buffer.manager.BufferSize()
	for c := range r.pins {
		r.pins[c] = make([]float32, bufferSize)
	}
	return r
}

// StreamName returns the stream this reader pulls from.
func (r *TimelineReader) StreamName() string {
	return r.streamName
}

// Process fills each output pin from the timeline buffer. Runs on the audio
// callback thread.
func (r *TimelineReader) Process() {
	for c := range r.pins {
		r.buffer.Read(r.streamName, c, r.pins[c])
	}
}

// OutputChannels returns the number of output pins.
func (r *TimelineReader) OutputChannels() int {
	return len(r.pins)
}

// OutputBuffer returns the pin buffer for a channel.
func (r *TimelineReader) OutputBuffer(channel int) []float32 {
	return r.pins[channel]
}

// BufferSizeChanged reallocates the pin buffers for the new period size.
func (r *TimelineReader) BufferSizeChanged(bufferSize int) {
	for c := range r.pins {
		r.pins[c] = make([]float32, bufferSize)
	}
}

var _ audio.OutputNode = (*TimelineReader)(nil)
