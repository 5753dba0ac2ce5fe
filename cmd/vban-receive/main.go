// ABOUTME: Entry point for the VBAN receiver
// ABOUTME: Wires UDP ingress, playback, discovery, monitor and TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/4dsound/vban-go/internal/discovery"
	"github.com/4dsound/vban-go/internal/monitor"
	"github.com/4dsound/vban-go/internal/ui"
	"github.com/4dsound/vban-go/pkg/audio"
	"github.com/4dsound/vban-go/pkg/audio/output"
	"github.com/4dsound/vban-go/pkg/receiver"
	"github.com/4dsound/vban-go/pkg/vban"
	"golang.org/x/sync/errgroup"
)

var (
	port        = flag.Int("port", vban.DefaultPort, "UDP port to listen on")
	address     = flag.String("address", "", "Address to bind to (default: any)")
	streamName  = flag.String("stream", "Stream1", "VBAN stream name to play")
	channels    = flag.Int("channels", 2, "Channel count of the stream")
	routing     = flag.String("routing", "", "Comma-separated source channels per output pin, e.g. 1,0 (empty: timeline playback)")
	latency     = flag.Float64("latency", 0, "Fixed latency in ms (0: calibrate automatically)")
	sampleRate  = flag.Int("samplerate", 48000, "Device sample rate in Hz")
	bufferSize  = flag.Int("buffersize", 256, "Device period size in frames")
	backend     = flag.String("backend", "malgo", "Audio backend: malgo or oto")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	monitorPort = flag.Int("monitor-port", 0, "WebSocket status feed port (0: disabled)")
	useTUI      = flag.Bool("tui", false, "Run the interactive terminal UI")
	logFile     = flag.String("log-file", "", "Log file path (default: stderr)")
)

type playbackOutput interface {
	output.Output
	SetVolume(volume int)
	SetMuted(muted bool)
}

// session abstracts the two playback paths so the monitor and TUI can drive
// either one.
type session interface {
	StreamCount() int
	Latency() float64
	HasErrors() bool
	ErrorMessage() string
	Calibrate()
	Resync()
	Close()
}

// timelineSession plays through the drift-compensated timeline buffer.
type timelineSession struct {
	recv *receiver.Receiver
}

func (s *timelineSession) StreamCount() int     { return s.recv.StreamCount() }
func (s *timelineSession) Latency() float64     { return s.recv.Latency() }
func (s *timelineSession) HasErrors() bool      { return s.recv.HasErrors() }
func (s *timelineSession) ErrorMessage() string { return s.recv.ErrorMessage() }
func (s *timelineSession) Calibrate()           { s.recv.CalibrateLatency() }
func (s *timelineSession) Resync()              { s.recv.Buffer().Reset() }
func (s *timelineSession) Close()               { s.recv.Close() }

// routedSession plays through per-channel sample queues with explicit
// channel routing.
type routedSession struct {
	router   *receiver.PacketRouter
	player   *receiver.StreamPlayer
	periodMs float64
	spare    int
}

func (s *routedSession) StreamCount() int     { return s.router.StreamListenerCount() }
func (s *routedSession) Latency() float64     { return float64(s.spare) * s.periodMs }
func (s *routedSession) HasErrors() bool      { return s.router.HasErrors() }
func (s *routedSession) ErrorMessage() string { return s.router.ErrorMessage() }
func (s *routedSession) Resync()              { s.router.ClearSpareBuffers() }
func (s *routedSession) Close()               { s.player.Close() }

// Calibrate is a no-op; queue playback uses a fixed pre-roll.
func (s *routedSession) Calibrate() {}

func main() {
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		if *useTUI {
			log.SetOutput(f)
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	} else if *useTUI {
		log.SetOutput(io.Discard)
	}

	manager := audio.NewNodeManager(*sampleRate, *bufferSize)

	server := receiver.NewUDPServer(receiver.ServerConfig{
		Port:    *port,
		Address: *address,
	})

	var sess session
	outChannels := *channels
	if *routing != "" {
		route, err := parseRouting(*routing)
		if err != nil {
			log.Fatalf("Invalid routing: %v", err)
		}
		router := receiver.NewPacketRouter(server)
		player := receiver.NewStreamPlayer(manager, *streamName, route)
		router.RegisterStreamListener(player)

		periodMs := float64(*bufferSize) * 1000 / float64(*sampleRate)
		spare := 1
		if *latency > 0 {
			spare = int(*latency / periodMs)
			player.SetLatency(spare)
		}
		sess = &routedSession{router: router, player: player, periodMs: periodMs, spare: spare}
		outChannels = len(route)
	} else {
		recv := receiver.NewReceiver(manager, server, 0)
		recv.AddStream(*streamName, *channels)
		manager.RegisterOutput(receiver.NewTimelineReader(recv.Buffer(), *streamName, *channels))
		if *latency > 0 {
			recv.SetLatency(*latency)
		}
		sess = &timelineSession{recv: recv}
	}
	defer sess.Close()

	var out playbackOutput
	switch *backend {
	case "oto":
		out = output.NewOto()
	default:
		out = output.NewMalgo()
	}
	if err := out.Open(outChannels, manager); err != nil {
		log.Fatalf("Failed to open audio output: %v", err)
	}
	defer out.Close()

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start UDP server: %v", err)
	}
	defer server.Stop()

	if !*noMDNS {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "vban"
		}
		mdnsManager := discovery.NewManager(discovery.Config{
			InstanceName: fmt.Sprintf("%s-vban", hostname),
			Port:         *port,
			StreamName:   *streamName,
		})
		if err := mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			defer mdnsManager.Stop()
		}
	}

	if *monitorPort > 0 {
		mon := monitor.New(monitor.Config{Port: *monitorPort}, func() monitor.Stats {
			return monitor.Stats{
				StreamCount:  sess.StreamCount(),
				LatencyMs:    sess.Latency(),
				HasErrors:    sess.HasErrors(),
				ErrorMessage: sess.ErrorMessage(),
			}
		})
		if err := mon.Start(); err != nil {
			log.Fatalf("Failed to start monitor: %v", err)
		}
		defer mon.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *useTUI {
		runTUI(sess, out, sigChan)
		return
	}

	log.Printf("Receiving stream %q on port %d, press Ctrl-C to stop", *streamName, *port)
	<-sigChan
	log.Printf("Shutting down")
}

// parseRouting parses a comma-separated channel list into routing entries.
func parseRouting(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	route := make([]int, 0, len(parts))
	for _, part := range parts {
		channel, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || channel < 0 {
			return nil, fmt.Errorf("invalid channel %q", part)
		}
		route = append(route, channel)
	}
	return route, nil
}

// runTUI drives the terminal UI alongside a status pump and a control loop.
func runTUI(sess session, out playbackOutput, sigChan chan os.Signal) {
	control := ui.NewControl()
	program := ui.Run(*port, *streamName, *latency > 0, control)

	done := make(chan struct{})
	var g errgroup.Group

	g.Go(func() error {
		_, err := program.Run()
		close(done)
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				program.Send(ui.StatusMsg{
					StreamCount:  sess.StreamCount(),
					LatencyMs:    sess.Latency(),
					ErrorMessage: sess.ErrorMessage(),
				})
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-done:
				return nil
			case <-sigChan:
				program.Quit()
			case v := <-control.Volume:
				out.SetVolume(v)
			case muted := <-control.Mute:
				out.SetMuted(muted)
			case <-control.Calibrate:
				sess.Calibrate()
			case <-control.Resync:
				sess.Resync()
			case <-control.Quit:
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Printf("TUI error: %v", err)
	}
}
