package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return event
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if cap(hub.broadcast) != broadcastBuffer {
		t.Errorf("Expected broadcast buffer %d, got %d", broadcastBuffer, cap(hub.broadcast))
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	if !hub.BroadcastEvent(Event{Type: inventory.EventCardUpdated}) {
		t.Error("Expected broadcast to be queued")
	}
}

func TestHub_BroadcastDoesNotBlockWithoutRunLoop(t *testing.T) {
	hub := NewHub()

	for i := 0; i < broadcastBuffer; i++ {
		if !hub.BroadcastEvent(Event{Type: inventory.EventCardUpdated}) {
			t.Fatalf("Broadcast %d should have been queued", i)
		}
	}
	if hub.BroadcastEvent(Event{Type: inventory.EventCardUpdated}) {
		t.Error("Expected broadcast to be dropped when the queue is full")
	}
}

func TestHub_NotifyDeliversInventoryEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	conn := dial(t, server, "?userId=u1")
	waitForClients(t, hub, 1)

	hub.Notify(inventory.Event{Type: inventory.EventContainerUpdated, UserID: "u1", ID: "deck-1"})

	event := readEvent(t, conn)
	if event.Type != inventory.EventContainerUpdated {
		t.Errorf("Expected type %s, got %s", inventory.EventContainerUpdated, event.Type)
	}
	if event.UserID != "u1" || event.ID != "deck-1" {
		t.Errorf("Unexpected event target %s/%s", event.UserID, event.ID)
	}
}

func TestHub_ScopesClientsToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	alice := dial(t, server, "?userId=alice")
	bob := dial(t, server, "?userId=bob")
	waitForClients(t, hub, 2)

	hub.Notify(inventory.Event{Type: inventory.EventCardUpdated, UserID: "bob", ID: "card-b"})
	hub.Notify(inventory.Event{Type: inventory.EventCardUpdated, UserID: "alice", ID: "card-a"})

	if got := readEvent(t, alice); got.ID != "card-a" {
		t.Errorf("Alice expected card-a, got %s", got.ID)
	}
	if got := readEvent(t, bob); got.ID != "card-b" {
		t.Errorf("Bob expected card-b, got %s", got.ID)
	}
}

func TestHub_UnscopedClientsOnlyGetGlobalEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	hub.Notify(inventory.Event{Type: inventory.EventCardUpdated, UserID: "alice", ID: "card-a"})
	hub.BroadcastEvent(Event{Type: "server:notice"})

	if got := readEvent(t, conn); got.Type != "server:notice" {
		t.Errorf("Expected only the global event, got %s for %q", got.Type, got.UserID)
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, server, ""))
	}
	waitForClients(t, hub, 3)

	hub.BroadcastEvent(Event{Type: "broadcast:test", Data: map[string]int{"value": 42}})

	for i, conn := range conns {
		if got := readEvent(t, conn); got.Type != "broadcast:test" {
			t.Errorf("Client %d expected type broadcast:test, got %s", i, got.Type)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	conn := dial(t, server, "")
	waitForClients(t, hub, 1)

	_ = conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	hub.Stop()
	hub.Stop()

	deadline := time.Now().Add(time.Second)
	for !hub.IsStopped() {
		if time.Now().After(deadline) {
			t.Fatal("Hub did not stop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if hub.BroadcastEvent(Event{Type: "late"}) {
		t.Error("Expected broadcast on stopped hub to fail")
	}

	rec := httptest.NewRecorder()
	hub.ServeWs(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from stopped hub, got %d", rec.Code)
	}
}
