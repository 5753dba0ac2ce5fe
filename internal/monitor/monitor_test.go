// ABOUTME: Tests for the WebSocket status feed
// ABOUTME: Connects a real client and checks the broadcast snapshots
package monitor

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestMonitorBroadcastsStats(t *testing.T) {
	port := 29471
	m := New(Config{Port: port, Interval: 20 * time.Millisecond}, func() Stats {
		return Stats{
			StreamCount:  2,
			LatencyMs:    10.5,
			HasErrors:    true,
			ErrorMessage: "socket closed",
		}
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	conn := dialStatus(t, port)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var stats Stats
	if err := json.Unmarshal(payload, &stats); err != nil {
		t.Fatalf("broadcast is not valid JSON: %v", err)
	}
	if stats.SessionID != m.SessionID() {
		t.Errorf("SessionID = %q, want %q", stats.SessionID, m.SessionID())
	}
	if stats.StreamCount != 2 || stats.LatencyMs != 10.5 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.HasErrors || stats.ErrorMessage != "socket closed" {
		t.Errorf("error fields = %v/%q", stats.HasErrors, stats.ErrorMessage)
	}
	if stats.Uptime == "" {
		t.Error("uptime should be populated")
	}
}

func TestMonitorSurvivesClientDisconnect(t *testing.T) {
	port := 29472
	m := New(Config{Port: port, Interval: 10 * time.Millisecond}, func() Stats {
		return Stats{StreamCount: 1}
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	first := dialStatus(t, port)
	first.Close()

	// Broadcasts to the dead connection must not take the feed down.
	time.Sleep(50 * time.Millisecond)

	second := dialStatus(t, port)
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err != nil {
		t.Fatalf("feed unavailable after a client disconnect: %v", err)
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := New(Config{Port: 29473}, func() Stats { return Stats{} })
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop()
	m.Stop()
}

func dialStatus(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/status", port)

	var conn *websocket.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s failed: %v", url, err)
	return nil
}
