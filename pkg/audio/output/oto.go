// ABOUTME: Oto-based audio output implementation
// ABOUTME: Pulls NodeManager periods from a goroutine and streams 16-bit PCM to oto
package output

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Oto drives a NodeManager from a pump goroutine feeding an oto player
// through a pipe. Fallback backend for platforms where malgo is unavailable;
// adds one pipe buffer of latency compared to the callback backend.
type Oto struct {
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	manager    *audio.NodeManager
	channels   int
	volume     int
	muted      bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOto creates an Oto output.
func NewOto() *Oto {
	return &Oto{volume: 100}
}

// Open initializes the oto context and starts the pump goroutine.
func (o *Oto) Open(channels int, manager *audio.NodeManager) error {
	if o.otoCtx != nil {
		// oto only allows one context per process.
		return fmt.Errorf("output already open")
	}

	op := &oto.NewContextOptions{
		SampleRate:   manager.SampleRate(),
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.manager = manager
	o.channels = channels
	o.stopChan = make(chan struct{})

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pump()
	}()

	log.Printf("Audio output initialized: %dHz, %d channels (oto)",
		manager.SampleRate(), channels)

	return nil
}

// pump runs graph periods and writes them to the player pipe. The blocking
// pipe write paces the loop at the device rate.
func (o *Oto) pump() {
	bufferSize := o.manager.BufferSize()

	planar := make([][]float32, o.channels)
	for c := range planar {
		planar[c] = make([]float32, bufferSize)
	}
	interleaved := make([]float32, bufferSize*o.channels)
	bytes := make([]byte, bufferSize*o.channels*2)

	for {
		select {
		case <-o.stopChan:
			return
		default:
		}

		o.manager.ProcessCallback(planar)

		for c := 0; c < o.channels; c++ {
			for i := 0; i < bufferSize; i++ {
				interleaved[i*o.channels+c] = planar[c][i]
			}
		}
		applyVolume(interleaved, o.volume, o.muted)

		for i, v := range interleaved {
			s := int16(v * 32767)
			bytes[i*2] = byte(s)
			bytes[i*2+1] = byte(uint16(s) >> 8)
		}

		if _, err := o.pipeWriter.Write(bytes); err != nil {
			return
		}
	}
}

// Close stops the pump and releases output resources.
func (o *Oto) Close() error {
	o.stopOnce.Do(func() {
		if o.stopChan != nil {
			close(o.stopChan)
		}
	})
	if o.pipeReader != nil {
		o.pipeReader.Close()
	}
	o.wg.Wait()
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
	return nil
}

// SetVolume sets the volume (0-100).
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// SetMuted sets the mute state.
func (o *Oto) SetMuted(muted bool) {
	o.muted = muted
}
