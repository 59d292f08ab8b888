package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	// Registration happens during the upgrade handshake, so the connection
	// is broadcastable as soon as Dial returns.
	hub.Broadcast(Event{Type: CompressionCompleted, RecordingID: "rec-9", FileCount: 3})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Type != CompressionCompleted || got.RecordingID != "rec-9" || got.FileCount != 3 {
		t.Errorf("event mismatch: %+v", got)
	}
}

func TestHubAttachForwardsBusEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	bus := NewBus()
	detach := hub.Attach(bus)
	defer detach()

	bus.Publish(Event{Type: TrimApplied, RecordingID: "rec-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Type != TrimApplied {
		t.Errorf("event mismatch: %+v", got)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	conn.Close()

	// Give the read loop a moment to observe the close.
	time.Sleep(50 * time.Millisecond)

	// Must not panic or wedge with a dead client around.
	hub.Broadcast(Event{Type: CompressionStarted})
}
