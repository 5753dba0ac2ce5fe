// ABOUTME: UDP client for VBAN packet egress
// ABOUTME: Connected socket with best-effort sends off the audio thread
package sender

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/4dsound/vban-go/pkg/vban"
)

// Client sends VBAN datagrams to a single destination. Packets are handed
// off through a channel so the audio thread never blocks on the socket; when
// the channel is full the packet is dropped.
type Client struct {
	conn    *net.UDPConn
	packets chan []byte
	done    chan struct{}
	dropped atomic.Int64
}

// NewClient dials the destination and starts the send goroutine.
func NewClient(address string, port int) (*Client, error) {
	if port == 0 {
		port = vban.DefaultPort
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("invalid destination address %q", address)
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s:%d: %w", address, port, err)
	}

	c := &Client{
		conn:    conn,
		packets: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	go c.sendLoop()
	return c, nil
}

// Send queues a packet for transmission. The slice is owned by the client
// after the call. Never blocks; over-full queues drop the packet.
func (c *Client) Send(packet []byte) {
	select {
	case c.packets <- packet:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns the number of packets discarded because the send queue
// was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// RemoteAddr returns the destination address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close stops the send goroutine and closes the socket.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Client) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case packet := <-c.packets:
			if _, err := c.conn.Write(packet); err != nil {
				return
			}
		}
	}
}
