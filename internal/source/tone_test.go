// ABOUTME: Tests for the sine test tone source
// ABOUTME: Covers amplitude bounds, phase continuity and channel duplication
package source

import (
	"math"
	"testing"

	"github.com/4dsound/vban-go/pkg/audio"
)

func TestToneStaysWithinAmplitude(t *testing.T) {
	manager := audio.NewNodeManager(48000, 256)
	tone := NewTone(manager, 440, 0.5, 1)

	for period := 0; period < 10; period++ {
		tone.Process()
		for i, v := range tone.OutputBuffer(0) {
			if v > 0.5 || v < -0.5 {
				t.Fatalf("period %d sample %d = %v exceeds amplitude 0.5", period, i, v)
			}
		}
	}
}

func TestToneDuplicatesAcrossChannels(t *testing.T) {
	manager := audio.NewNodeManager(48000, 64)
	tone := NewTone(manager, 440, 1, 4)

	tone.Process()
	if got := tone.OutputChannels(); got != 4 {
		t.Fatalf("OutputChannels = %d, want 4", got)
	}
	first := tone.OutputBuffer(0)
	for c := 1; c < 4; c++ {
		pin := tone.OutputBuffer(c)
		for i := range first {
			if pin[i] != first[i] {
				t.Fatalf("channel %d sample %d = %v, want %v", c, i, pin[i], first[i])
			}
		}
	}
}

func TestTonePhaseContinuityAcrossPeriods(t *testing.T) {
	manager := audio.NewNodeManager(48000, 256)
	tone := NewTone(manager, 440, 1, 1)

	// Concatenated periods must match one uninterrupted sine.
	step := 2 * math.Pi * 440 / 48000
	n := 0
	for period := 0; period < 4; period++ {
		tone.Process()
		for _, v := range tone.OutputBuffer(0) {
			want := math.Sin(step * float64(n))
			if math.Abs(float64(v)-want) > 1e-3 {
				t.Fatalf("sample %d = %v, want %v", n, v, want)
			}
			n++
		}
	}
}

func TestToneBufferSizeChange(t *testing.T) {
	manager := audio.NewNodeManager(48000, 256)
	tone := NewTone(manager, 440, 1, 2)

	tone.BufferSizeChanged(128)
	if got := len(tone.OutputBuffer(0)); got != 128 {
		t.Errorf("pin size = %d, want 128", got)
	}
}
