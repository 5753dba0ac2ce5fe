// ABOUTME: Sine test tone source
// ABOUTME: Phase-continuous generator node for exercising the sender
package source

import (
	"math"

	"github.com/4dsound/vban-go/pkg/audio"
)

// Tone is an audio node producing the same sine wave on every channel.
type Tone struct {
	manager   *audio.NodeManager
	frequency float64
	amplitude float32
	phase     float64
	pins      [][]float32
}

// NewTone creates a tone source with the given frequency and channel count.
func NewTone(manager *audio.NodeManager, frequency float64, amplitude float32, channels int) *Tone {
	t := &Tone{
		manager:   manager,
		frequency: frequency,
		amplitude: amplitude,
		pins:      make([][]float32, channels),
	}
	for c := range t.pins {
		t.pins[c] = make([]float32, manager.BufferSize())
	}
	return t
}

// Process fills one period of sine. Runs on the audio callback thread.
func (t *Tone) Process() {
	step := 2 * math.Pi * t.frequency / float64(t.manager.SampleRate())
	for i := range t.pins[0] {
		v := t.amplitude * float32(math.Sin(t.phase))
		t.phase += step
		for c := range t.pins {
			t.pins[c][i] = v
		}
	}
	if t.phase > 2*math.Pi {
		t.phase -= 2 * math.Pi
	}
}

// OutputChannels returns the channel count.
func (t *Tone) OutputChannels() int {
	return len(t.pins)
}

// OutputBuffer returns the pin buffer for a channel.
func (t *Tone) OutputBuffer(channel int) []float32 {
	return t.pins[channel]
}

// BufferSizeChanged reallocates the pin buffers.
func (t *Tone) BufferSizeChanged(bufferSize int) {
	for c := range t.pins {
		t.pins[c] = make([]float32, bufferSize)
	}
}

var _ audio.OutputNode = (*Tone)(nil)
