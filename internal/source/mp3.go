// ABOUTME: MP3 file source
// ABOUTME: Decodes to stereo float and feeds a sample queue at playback rate
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/receiver"
	"github.com/hajimehoshi/go-mp3"
)

// FileSource plays an MP3 file into the audio graph. A feeder goroutine
// decodes ahead of the audio callback into a sample queue; the file loops at
// EOF. The file's sample rate must match the device rate since no resampling
// is performed.
type FileSource struct {
	manager *audio.NodeManager
	file    *os.File
	decoder *mp3.Decoder
	player  *receiver.SampleQueuePlayer
	title   string

	done chan struct{}
}

// NewFileSource opens an MP3 file and starts decoding into the queue.
func NewFileSource(manager *audio.NodeManager, path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	if decoder.SampleRate() != manager.SampleRate() {
		f.Close()
		return nil, fmt.Errorf("MP3 sample rate %d does not match device rate %d",
			decoder.SampleRate(), manager.SampleRate())
	}

	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", path, decoder.SampleRate())

	s := &FileSource{
		manager: manager,
		file:    f,
		decoder: decoder,
		player:  receiver.NewSampleQueuePlayer(manager, 2, 2),
		title:   path,
		done:    make(chan struct{}),
	}
	go s.feed()
	return s, nil
}

// Node returns the graph node producing the file's audio.
func (s *FileSource) Node() audio.OutputNode {
	return s.player
}

// Close stops the feeder and closes the file.
func (s *FileSource) Close() error {
	close(s.done)
	return s.file.Close()
}

// feed decodes ahead of playback, pacing itself on queue depth.
func (s *FileSource) feed() {
	bufferSize := s.manager.BufferSize()
	period := time.Duration(bufferSize) * time.Second / time.Duration(s.manager.SampleRate())
	highWater := 8 * bufferSize * 2

	raw := make([]byte, bufferSize*4)
	frames := [][]float32{make([]float32, bufferSize), make([]float32, bufferSize)}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if s.player.QueuedSamples() >= highWater {
			time.Sleep(period)
			continue
		}

		n, err := io.ReadFull(s.decoder, raw)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			log.Printf("MP3 decode error: %v", err)
			return
		}

		count := n / 4
		for i := 0; i < count; i++ {
			left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
			right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
			frames[0][i] = float32(left) / 32767
			frames[1][i] = float32(right) / 32767
		}
		if count > 0 {
			s.player.QueueSamples([][]float32{frames[0][:count], frames[1][:count]})
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if s.rewind() != nil {
				return
			}
		}
	}
}

// rewind restarts decoding from the beginning of the file.
func (s *FileSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		log.Printf("Failed to seek MP3 to start: %v", err)
		return err
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		log.Printf("Failed to restart MP3 decoder: %v", err)
		return err
	}
	s.decoder = decoder
	return nil
}
