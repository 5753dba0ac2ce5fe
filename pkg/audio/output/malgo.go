// ABOUTME: Malgo-based callback audio output
// ABOUTME: Drives the NodeManager from the miniaudio device callback thread
package output

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo drives a NodeManager from a miniaudio playback callback. This is the
// preferred backend because the device thread invokes the graph directly,
// without an intermediate buffer.
type Malgo struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	manager  *audio.NodeManager
	channels int
	volume   int
	muted    bool
	ready    bool
	mu       sync.Mutex

	// Callback scratch, allocated at Open so the callback never allocates.
	planar    [][]float32
	remainder []float32 // interleaved samples left over from the last period
	remOffset int
	remLength int
}

// NewMalgo creates a Malgo output.
func NewMalgo() *Malgo {
	return &Malgo{volume: 100}
}

// Open initializes the playback device and starts the callback.
func (m *Malgo) Open(channels int, manager *audio.NodeManager) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("output already open")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoCtx = ctx

	m.manager = manager
	m.channels = channels

	bufferSize := manager.BufferSize()
	m.planar = make([][]float32, channels)
	for c := range m.planar {
		m.planar[c] = make([]float32, bufferSize)
	}
	m.remainder = make([]float32, bufferSize*channels)
	m.remOffset = 0
	m.remLength = 0

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(manager.SampleRate())
	deviceConfig.PeriodSizeInFrames = uint32(bufferSize)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.dataCallback(pOutput, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels, %d frames/period (malgo)",
		manager.SampleRate(), channels, bufferSize)

	return nil
}

// dataCallback fills the device buffer. The device may request any number of
// frames; the graph is always run in whole NodeManager periods and leftover
// samples are carried to the next callback.
func (m *Malgo) dataCallback(pOutput []byte, frameCount int) {
	needed := frameCount * m.channels
	written := 0
	for written < needed {
		if m.remOffset >= m.remLength {
			m.runPeriod()
		}
		n := m.remLength - m.remOffset
		if n > needed-written {
			n = needed - written
		}
		writeFloat32LE(pOutput[written*4:], m.remainder[m.remOffset:m.remOffset+n])
		m.remOffset += n
		written += n
	}
}

// runPeriod executes one graph period and interleaves it into the remainder.
func (m *Malgo) runPeriod() {
	m.manager.ProcessCallback(m.planar)

	bufferSize := len(m.planar[0])
	for c := 0; c < m.channels; c++ {
		src := m.planar[c]
		for i := 0; i < bufferSize; i++ {
			m.remainder[i*m.channels+c] = src[i]
		}
	}
	m.remLength = bufferSize * m.channels
	m.remOffset = 0
	applyVolume(m.remainder[:m.remLength], m.volume, m.muted)
}

// writeFloat32LE stores float32 samples into a little-endian byte buffer.
func writeFloat32LE(dst []byte, src []float32) {
	for i, v := range src {
		bits := math.Float32bits(v)
		dst[i*4] = byte(bits)
		dst[i*4+1] = byte(bits >> 8)
		dst[i*4+2] = byte(bits >> 16)
		dst[i*4+3] = byte(bits >> 24)
	}
}

// Close stops and releases the device.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
		m.ready = false
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	return nil
}

// SetVolume sets the volume (0-100).
func (m *Malgo) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.volume = volume
}

// SetMuted sets the mute state.
func (m *Malgo) SetMuted(muted bool) {
	m.muted = muted
}
