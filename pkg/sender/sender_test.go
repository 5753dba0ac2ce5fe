// ABOUTME: Tests for the sender node and UDP client
// ABOUTME: Captures emitted datagrams on a loopback socket and decodes them
package sender

import (
	"net"
	"testing"
	"time"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/vban"
)

const (
	testSampleRate = 48000
	testBufferSize = 256
)

type constantSource struct {
	pins [][]float32
}

func newConstantSource(value float32, channels, bufferSize int) *constantSource {
	s := &constantSource{pins: make([][]float32, channels)}
	for c := range s.pins {
		s.pins[c] = make([]float32, bufferSize)
		for i := range s.pins[c] {
			s.pins[c][i] = value
		}
	}
	return s
}

func (s *constantSource) Process()                     {}
func (s *constantSource) OutputChannels() int          { return len(s.pins) }
func (s *constantSource) OutputBuffer(c int) []float32 { return s.pins[c] }

type packetSink struct {
	conn    *net.UDPConn
	packets chan []byte
}

func newPacketSink(t *testing.T) *packetSink {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	sink := &packetSink{conn: conn, packets: make(chan []byte, 64)}
	go func() {
		buf := make([]byte, vban.MaxDataSize)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			sink.packets <- append([]byte(nil), buf[:n]...)
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return sink
}

func (s *packetSink) next(t *testing.T) []byte {
	t.Helper()
	select {
	case p := <-s.packets:
		return p
	case <-time.After(time.Second):
		t.Fatal("no packet received before timeout")
		return nil
	}
}

func newTestSender(t *testing.T, bitDepth int) (*audio.NodeManager, *SenderNode, *packetSink) {
	t.Helper()
	sink := newPacketSink(t)
	port := sink.conn.LocalAddr().(*net.UDPAddr).Port

	client, err := NewClient("127.0.0.1", port)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	manager := audio.NewNodeManager(testSampleRate, testBufferSize)
	return manager, NewSenderNode(manager, client, "Stream1", bitDepth), sink
}

func TestSenderEmitsDecodablePackets(t *testing.T) {
	_, s, sink := newTestSender(t, 16)
	s.AddInput(newConstantSource(0.5, 2, testBufferSize))
	s.SetActive(true)

	// Stereo 16-bit fits 256-frame periods exactly into one packet.
	for i := 0; i < 2; i++ {
		s.Process()
	}

	for want := uint32(0); want < 2; want++ {
		packet := sink.next(t)
		header, err := vban.ParseHeader(packet)
		if err != nil {
			t.Fatalf("emitted packet failed to parse: %v", err)
		}
		if header.StreamName != "Stream1" {
			t.Errorf("StreamName = %q, want Stream1", header.StreamName)
		}
		if header.Channels != 2 || header.BitDepth != 16 {
			t.Errorf("format = %dch/%dbit, want 2ch/16bit", header.Channels, header.BitDepth)
		}
		if header.SampleRate() != testSampleRate {
			t.Errorf("SampleRate = %d, want %d", header.SampleRate(), testSampleRate)
		}
		if header.FrameCounter != want {
			t.Errorf("FrameCounter = %d, want %d", header.FrameCounter, want)
		}
		if len(packet) != vban.HeaderSize+header.PayloadSize() {
			t.Fatalf("packet length = %d, want %d", len(packet), vban.HeaderSize+header.PayloadSize())
		}

		out := make([][]float32, header.Channels)
		for c := range out {
			out[c] = make([]float32, header.FramesPerPacket)
		}
		if err := vban.DecodeInterleaved(packet[vban.HeaderSize:], header, out); err != nil {
			t.Fatalf("payload failed to decode: %v", err)
		}
		for c := range out {
			if out[c][0] < 0.49 || out[c][0] > 0.51 {
				t.Errorf("decoded sample [%d][0] = %v, want ~0.5", c, out[c][0])
			}
		}
	}
}

func TestSenderAccumulatesPartialPeriods(t *testing.T) {
	_, s, sink := newTestSender(t, 16)

	// Eight mono channels: 1436 / 16 = 89 frames per packet, so the first
	// period spans multiple packets with a partial remainder.
	s.AddInput(newConstantSource(0.25, 8, testBufferSize))
	s.SetActive(true)
	s.Process()

	packet := sink.next(t)
	header, err := vban.ParseHeader(packet)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if header.FramesPerPacket != 89 {
		t.Errorf("FramesPerPacket = %d, want 89", header.FramesPerPacket)
	}
	if s.accumFrames != testBufferSize-2*89 {
		t.Errorf("partial accumulation = %d frames, want %d", s.accumFrames, testBufferSize-2*89)
	}
}

func TestSenderInactiveEmitsNothing(t *testing.T) {
	_, s, sink := newTestSender(t, 16)
	s.AddInput(newConstantSource(0.5, 2, testBufferSize))

	s.Process()

	select {
	case <-sink.packets:
		t.Fatal("inactive sender emitted a packet")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSenderRestartResetsFrameCounter(t *testing.T) {
	_, s, sink := newTestSender(t, 16)
	s.AddInput(newConstantSource(0.5, 2, testBufferSize))

	s.SetActive(true)
	s.Process()
	s.Process()
	s.SetActive(false)
	s.SetActive(true)
	s.Process()

	counters := []uint32{}
	for i := 0; i < 3; i++ {
		header, err := vban.ParseHeader(sink.next(t))
		if err != nil {
			t.Fatalf("ParseHeader failed: %v", err)
		}
		counters = append(counters, header.FrameCounter)
	}
	want := []uint32{0, 1, 0}
	for i := range want {
		if counters[i] != want[i] {
			t.Errorf("counters = %v, want %v", counters, want)
			break
		}
	}
}

func TestSenderIdlesOnUnsupportedRate(t *testing.T) {
	_, s, sink := newTestSender(t, 16)
	s.AddInput(newConstantSource(0.5, 2, testBufferSize))
	s.SetActive(true)

	s.SampleRateChanged(12345)
	s.Process()

	select {
	case <-sink.packets:
		t.Fatal("sender emitted with an unrepresentable sample rate")
	case <-time.After(50 * time.Millisecond):
	}

	s.SampleRateChanged(testSampleRate)
	s.Process()
	sink.next(t)
}

func TestSender32BitWireFormat(t *testing.T) {
	_, s, sink := newTestSender(t, 32)
	s.AddInput(newConstantSource(-0.75, 1, testBufferSize))
	s.SetActive(true)
	s.Process()

	header, err := vban.ParseHeader(sink.next(t))
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if header.BitDepth != 32 {
		t.Errorf("BitDepth = %d, want 32", header.BitDepth)
	}
}

func TestClientDropsWhenQueueFull(t *testing.T) {
	sink := newPacketSink(t)
	port := sink.conn.LocalAddr().(*net.UDPAddr).Port

	client, err := NewClient("127.0.0.1", port)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.Close() // send loop exits; the queue fills and overflows

	for i := 0; i < 100; i++ {
		client.Send([]byte{0})
	}
	if client.Dropped() == 0 {
		t.Error("expected drops once the queue filled")
	}
}

func TestClientRejectsBadAddress(t *testing.T) {
	if _, err := NewClient("not-an-ip", 0); err == nil {
		t.Fatal("NewClient should fail on an unparseable address")
	}
}
