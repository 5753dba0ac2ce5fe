// ABOUTME: Entry point for the VBAN sender
// ABOUTME: Streams a test tone or an MP3 file to a receiver
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/4dsound/vban-go/internal/discovery"
	"github.com/4dsound/vban-go/internal/source"
	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/sender"
	"github.com/4dsound/vban-go/pkg/vban"
)

var (
	destination = flag.String("dest", "", "Destination address (default: discover via mDNS)")
	port        = flag.Int("port", vban.DefaultPort, "Destination UDP port")
	streamName  = flag.String("stream", "Stream1", "VBAN stream name to send")
	audioFile   = flag.String("audio", "", "MP3 file to stream (default: test tone)")
	frequency   = flag.Float64("frequency", 440, "Test tone frequency in Hz")
	channels    = flag.Int("channels", 2, "Channel count of the test tone")
	bitDepth    = flag.Int("bits", 16, "Wire sample width: 16 or 32")
	sampleRate  = flag.Int("samplerate", 48000, "Sample rate in Hz")
	bufferSize  = flag.Int("buffersize", 256, "Period size in frames")
)

func main() {
	flag.Parse()

	dest := *destination
	if dest == "" {
		found, err := discoverReceiver()
		if err != nil {
			log.Fatalf("No destination given and discovery failed: %v", err)
		}
		dest = found.Host
		if found.Port != 0 {
			*port = found.Port
		}
		log.Printf("Discovered receiver %s at %s:%d", found.Name, dest, *port)
	}

	manager := audio.NewNodeManager(*sampleRate, *bufferSize)

	client, err := sender.NewClient(dest, *port)
	if err != nil {
		log.Fatalf("Failed to create UDP client: %v", err)
	}
	defer client.Close()

	node := sender.NewSenderNode(manager, client, *streamName, *bitDepth)

	if *audioFile != "" {
		file, err := source.NewFileSource(manager, *audioFile)
		if err != nil {
			log.Fatalf("Failed to open audio file: %v", err)
		}
		defer file.Close()
		node.AddInput(file.Node())
	} else {
		node.AddInput(source.NewTone(manager, *frequency, 0.5, *channels))
	}

	manager.RegisterProcess(node)
	node.SetActive(true)

	log.Printf("Streaming %q to %s:%d, press Ctrl-C to stop", *streamName, dest, *port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runClock(manager, sigChan)

	node.SetActive(false)
	log.Printf("Sender stopped")
}

// runClock paces the audio graph at the device rate without opening a
// playback device. One period runs per tick.
func runClock(manager *audio.NodeManager, stop chan os.Signal) {
	period := time.Duration(manager.BufferSize()) * time.Second /
		time.Duration(manager.SampleRate())
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var out [][]float32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			manager.ProcessCallback(out)
		}
	}
}

// discoverReceiver browses mDNS for the first advertised receiver.
func discoverReceiver() (*discovery.ReceiverInfo, error) {
	mdnsManager := discovery.NewManager(discovery.Config{})
	defer mdnsManager.Stop()

	if err := mdnsManager.Browse(); err != nil {
		return nil, err
	}

	select {
	case info := <-mdnsManager.Receivers():
		return info, nil
	case <-time.After(5 * time.Second):
		return nil, os.ErrDeadlineExceeded
	}
}
