// ABOUTME: Tests for the lock-free sample queue and queue player
// ABOUTME: Covers spare-latency pre-roll, underflow resync and depth bounds
package receiver

import (
	"testing"

	"github.com/4dsound/vban-go/pkg/audio"
)

func TestFloatQueueRoundsToPowerOfTwo(t *testing.T) {
	q := newFloatQueue(100)
	if len(q.buf) != 128 {
		t.Errorf("capacity = %d, want 128", len(q.buf))
	}
}

func TestFloatQueuePushPop(t *testing.T) {
	q := newFloatQueue(8)

	if !q.push([]float32{1, 2, 3}) {
		t.Fatal("push rejected with room available")
	}
	if got := q.size(); got != 3 {
		t.Errorf("size = %d, want 3", got)
	}

	out := make([]float32, 4)
	if q.pop(out) {
		t.Error("pop of 4 should fail with 3 queued")
	}

	out = out[:3]
	if !q.pop(out) {
		t.Fatal("pop rejected")
	}
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("popped %v, want [1 2 3]", out)
	}
	if got := q.size(); got != 0 {
		t.Errorf("size after pop = %d, want 0", got)
	}
}

func TestFloatQueueRejectsOversizedBatch(t *testing.T) {
	q := newFloatQueue(8)
	q.push(make([]float32, 6))

	if q.push(make([]float32, 4)) {
		t.Error("push should fail when the batch does not fit")
	}
	if got := q.size(); got != 6 {
		t.Errorf("failed push changed size to %d, want 6", got)
	}
}

func TestFloatQueueWrapsAroundRing(t *testing.T) {
	q := newFloatQueue(4)
	out := make([]float32, 3)

	for round := 0; round < 10; round++ {
		base := float32(round * 3)
		if !q.push([]float32{base, base + 1, base + 2}) {
			t.Fatalf("round %d: push rejected", round)
		}
		if !q.pop(out) {
			t.Fatalf("round %d: pop rejected", round)
		}
		for i, v := range out {
			if v != base+float32(i) {
				t.Fatalf("round %d sample %d = %v, want %v", round, i, v, base+float32(i))
			}
		}
	}
}

func TestFloatQueueDrain(t *testing.T) {
	q := newFloatQueue(8)
	q.push([]float32{1, 2, 3})
	q.drain()
	if got := q.size(); got != 0 {
		t.Errorf("size after drain = %d, want 0", got)
	}
}

const queueTestBufferSize = 256

func newTestQueuePlayer(t *testing.T, channels, spare int) *SampleQueuePlayer {
	t.Helper()
	manager := audio.NewNodeManager(testSampleRate, queueTestBufferSize)
	return NewSampleQueuePlayer(manager, channels, spare)
}

func stereoFrames(count int, value float32) [][]float32 {
	return frames(2, count, value)
}

func outputIs(p *SampleQueuePlayer, value float32) bool {
	for c := 0; c < p.OutputChannels(); c++ {
		for _, v := range p.OutputBuffer(c) {
			if v != value {
				return false
			}
		}
	}
	return true
}

func TestQueuePlayerSpareLatencyPreroll(t *testing.T) {
	p := newTestQueuePlayer(t, 2, 2)

	for i := 0; i < 3; i++ {
		p.QueueSamples(stereoFrames(queueTestBufferSize, 0.5))
	}
	if got := p.QueuedSamples(); got != 3*queueTestBufferSize*2 {
		t.Fatalf("queued = %d samples, want %d", got, 3*queueTestBufferSize*2)
	}

	// First period applies the requested spare latency and stays silent.
	p.Process()
	if !outputIs(p, 0) {
		t.Error("first period should be silent while the reserve builds")
	}

	// The reserve of two periods plus one playable period is met, so the
	// next two periods play audio.
	p.Process()
	if !outputIs(p, 0.5) {
		t.Error("second period should play queued samples")
	}
	p.Process()
	if !outputIs(p, 0.5) {
		t.Error("third period should play queued samples")
	}

	// One period remains, which is not strictly more than a period, so the
	// player underflows back into silence and rebuilds the reserve.
	p.Process()
	if !outputIs(p, 0) {
		t.Error("fourth period should be silent after underflow")
	}
	if got := p.QueuedSamples(); got != queueTestBufferSize*2 {
		t.Errorf("queued after underflow = %d, want %d", got, queueTestBufferSize*2)
	}
}

func TestQueuePlayerRebuildsReserveAfterUnderflow(t *testing.T) {
	p := newTestQueuePlayer(t, 1, 1)
	buf := frames(1, queueTestBufferSize, 0.25)

	p.QueueSamples(buf)
	p.QueueSamples(buf)
	p.Process() // apply spare latency, silence
	p.Process() // play
	if !outputIs(p, 0.25) {
		t.Fatal("expected playback after preroll")
	}
	p.Process() // underflow: one period left, not strictly more than needed
	if !outputIs(p, 0) {
		t.Fatal("expected silence on underflow")
	}

	// Topping the queue back over the reserve restores playback.
	p.QueueSamples(buf)
	p.QueueSamples(buf)
	p.Process()
	if !outputIs(p, 0.25) {
		t.Error("playback should resume once the reserve is rebuilt")
	}
}

func TestQueuePlayerOverflowDropsAndResyncs(t *testing.T) {
	p := newTestQueuePlayer(t, 2, 0)
	p.SetMaxQueueBuffers(2)

	for i := 0; i < 5; i++ {
		p.QueueSamples(stereoFrames(queueTestBufferSize, 0.5))
	}

	// Pushes beyond the depth bound are dropped, not partially enqueued.
	if got := p.QueuedSamples(); got != 2*queueTestBufferSize*2 {
		t.Errorf("queued = %d samples, want %d", got, 2*queueTestBufferSize*2)
	}
	if !p.clearFlag.IsSet() {
		t.Error("overflow should force a resync")
	}

	// The resync drains everything and restarts the pre-roll.
	p.Process()
	if !outputIs(p, 0) {
		t.Error("resync period should be silent")
	}
	if got := p.QueuedSamples(); got != 0 {
		t.Errorf("queued after resync = %d, want 0", got)
	}
}

func TestQueuePlayerClearForcesResync(t *testing.T) {
	p := newTestQueuePlayer(t, 1, 0)
	buf := frames(1, queueTestBufferSize, 0.5)

	p.QueueSamples(buf)
	p.QueueSamples(buf)
	p.Process()
	if !outputIs(p, 0.5) {
		t.Fatal("expected playback before clear")
	}

	p.Clear()
	p.Process()
	if !outputIs(p, 0) {
		t.Error("period after clear should be silent")
	}
	if got := p.QueuedSamples(); got != 0 {
		t.Errorf("queued after clear = %d, want 0", got)
	}
}

func TestQueuePlayerChannelMismatchIgnored(t *testing.T) {
	p := newTestQueuePlayer(t, 2, 0)

	p.QueueSamples(frames(1, queueTestBufferSize, 0.5))
	if got := p.QueuedSamples(); got != 0 {
		t.Errorf("mono push on stereo player queued %d samples, want 0", got)
	}
}

func TestQueuePlayerInterleavedOrdering(t *testing.T) {
	p := newTestQueuePlayer(t, 2, 0)

	samples := make([]float32, queueTestBufferSize*2)
	for i := 0; i < queueTestBufferSize; i++ {
		samples[i*2] = 0.25
		samples[i*2+1] = -0.25
	}
	p.QueueInterleaved(samples)
	p.QueueInterleaved(samples)
	p.Process()

	left, right := p.OutputBuffer(0), p.OutputBuffer(1)
	for i := 0; i < queueTestBufferSize; i++ {
		if left[i] != 0.25 || right[i] != -0.25 {
			t.Fatalf("frame %d = %v/%v, want 0.25/-0.25", i, left[i], right[i])
		}
	}
}

func TestQueuePlayerBufferSizeChangeResyncs(t *testing.T) {
	p := newTestQueuePlayer(t, 1, 0)
	p.QueueSamples(frames(1, queueTestBufferSize, 0.5))

	p.BufferSizeChanged(queueTestBufferSize)
	if !p.clearFlag.IsSet() {
		t.Error("buffer size change should force a resync")
	}
	if got := len(p.OutputBuffer(0)); got != queueTestBufferSize {
		t.Errorf("pin size = %d, want %d", got, queueTestBufferSize)
	}
}
