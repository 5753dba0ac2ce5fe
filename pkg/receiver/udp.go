// ABOUTME: UDP server for VBAN packet ingress
// ABOUTME: Drains a bound socket on a dedicated thread and fans out to listeners
package receiver

import (
	"errors"
	"fmt"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/vban"
	"golang.org/x/time/rate"
)

// DefaultReceiveBufferSize is the default SO_RCVBUF size in bytes.
const DefaultReceiveBufferSize = 1_000_000

// PacketListener receives raw datagrams on the receive thread. The slice is
// only valid for the duration of the call; listeners must not retain it and
// must return within tens of microseconds.
type PacketListener interface {
	PacketReceived(data []byte)
}

// ServerConfig configures a UDPServer.
type ServerConfig struct {
	// Port to listen on (default: vban.DefaultPort).
	Port int

	// Address to bind to; empty binds to any local address.
	Address string

	// ReceiveBufferSize for the socket (default: DefaultReceiveBufferSize).
	ReceiveBufferSize int
}

// UDPServer owns a bound UDPv4 socket and a receive loop that dispatches
// datagrams to registered listeners. One receive buffer is allocated at
// construction and reused for every datagram.
//
// The receive loop should run at or above the audio device thread's priority
// class so decoded packets land in time for the next audio period. Go does
// not expose SCHED_FIFO portably; the loop pins itself to an OS thread and
// stays allocation-free, which keeps scheduling pressure minimal.
type UDPServer struct {
	config  ServerConfig
	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup

	mu        sync.Mutex // guards listeners; also serializes dispatch
	listeners []PacketListener

	packet   []byte
	errLimit *rate.Limiter
}

// NewUDPServer creates a UDP server with the given configuration.
func NewUDPServer(config ServerConfig) *UDPServer {
	if config.Port == 0 {
		config.Port = vban.DefaultPort
	}
	if config.ReceiveBufferSize == 0 {
		config.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	return &UDPServer{
		config:   config,
		packet:   make([]byte, vban.MaxDataSize),
		errLimit: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Start binds the socket and spawns the receive thread.
func (s *UDPServer) Start() error {
	var ip net.IP
	if s.config.Address != "" {
		ip = net.ParseIP(s.config.Address)
		if ip == nil {
			return fmt.Errorf("invalid bind address %q", s.config.Address)
		}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: s.config.Port})
	if err != nil {
		return fmt.Errorf("failed to bind udp port %d: %w", s.config.Port, err)
	}

	if err := conn.SetReadBuffer(s.config.ReceiveBufferSize); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set receive buffer size: %w", err)
	}

	log.Printf("VBAN server listening on port %d", s.config.Port)

	s.conn = conn
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.receiveLoop()
	}()

	return nil
}

// Stop closes the socket, which unblocks the receive loop, and joins it.
func (s *UDPServer) Stop() {
	if !s.running.Swap(false) {
		return
	}
	if err := s.conn.Close(); err != nil {
		log.Printf("Error closing VBAN socket: %v", err)
	}
	s.wg.Wait()
}

// LocalAddr returns the bound address, or nil before Start.
func (s *UDPServer) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// receiveLoop runs on its own OS thread until the socket is closed.
func (s *UDPServer) receiveLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for s.running.Load() {
		n, _, err := s.conn.ReadFromUDP(s.packet)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.errLimit.Allow() {
				log.Printf("VBAN receive error: %v", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		for _, l := range s.listeners {
			l.PacketReceived(s.packet[:n])
		}
		s.mu.Unlock()
	}
}

// RegisterListener adds a packet listener.
func (s *UDPServer) RegisterListener(l PacketListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener removes a previously registered packet listener.
func (s *UDPServer) RemoveListener(l PacketListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.listeners {
		if q == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}
