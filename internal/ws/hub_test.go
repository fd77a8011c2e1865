package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/smartcanteen/api/internal/auth"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/enum"
)

const testSecret = "test-secret"

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, room string) *Client {
	return &Client{
		hub:  hub,
		room: room,
		send: make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func expectEvent(t *testing.T, c *Client, wantType string) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != wantType {
			t.Errorf("expected type %q, got %q", wantType, received.Type)
		}
		return received
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("client in room %q did not receive message", c.room)
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatalf("client in room %q should not have received a message", c.room)
	case <-time.After(50 * time.Millisecond):
	}
}

func testOrder(username string) database.Order {
	return database.Order{
		ID:       uuid.New(),
		Username: username,
		Items: []database.OrderItem{
			{MenuItemID: uuid.New(), Name: "Chicken Biryani", Qty: 2, Price: decimal.NewFromInt(120)},
		},
		Preference: enum.DefaultPreference,
		Status:     enum.OrderStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, "alice")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if !hub.rooms["alice"][client] {
		t.Fatal("client not registered in room")
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := startHub(t)
	client1 := mockClient(hub, StaffRoom)
	client2 := mockClient(hub, StaffRoom)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms[StaffRoom]) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", len(hub.rooms[StaffRoom]))
	}
	hub.mu.RUnlock()

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[StaffRoom] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestPublishOrderEvent_OwnerAndStaff(t *testing.T) {
	hub := startHub(t)
	alice := mockClient(hub, "alice")
	bob := mockClient(hub, "bob")
	staff := mockClient(hub, StaffRoom)

	for _, c := range []*Client{alice, bob, staff} {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	order := testOrder("alice")
	hub.PublishOrderEvent(context.Background(), enum.EventOrderCreated, order)

	got := expectEvent(t, alice, enum.EventOrderCreated)
	expectEvent(t, staff, enum.EventOrderCreated)
	expectNothing(t, bob)

	var payload struct {
		ID    string `json:"id"`
		User  string `json:"user"`
		Total string `json:"total"`
	}
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ID != order.ID.String() || payload.User != "alice" {
		t.Errorf("payload: got %+v", payload)
	}
	if payload.Total != "240.00" {
		t.Errorf("total: got %q, want 240.00", payload.Total)
	}
}

func TestBroadcast_DeduplicatesAcrossRooms(t *testing.T) {
	hub := startHub(t)
	staff := mockClient(hub, StaffRoom)
	hub.register <- staff
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast([]string{StaffRoom, StaffRoom}, Event{Type: "order.updated", Payload: json.RawMessage(`{}`)})

	expectEvent(t, staff, "order.updated")
	expectNothing(t, staff)
}

func TestBroadcastToEmptyRoom(t *testing.T) {
	hub := startHub(t)
	alice := mockClient(hub, "alice")
	hub.register <- alice
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast([]string{"carol"}, Event{Type: "order.created", Payload: json.RawMessage(`{}`)})

	expectNothing(t, alice)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, "alice")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-stopped

	if _, ok := <-client.send; ok {
		t.Fatal("expected send channel to be closed")
	}
	if hub.join(mockClient(hub, "bob")) {
		t.Fatal("join should fail after the hub stopped")
	}
}

func TestServeWS_RejectsMissingAndInvalidToken(t *testing.T) {
	hub := startHub(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, testSecret, w, r)
	})

	for _, target := range []string{"/ws/orders", "/ws/orders?token=garbage"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", target, rr.Code)
		}
	}
}

func TestServeWS_StudentReceivesOwnOrders(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, testSecret, w, r)
	}))
	defer srv.Close()

	token, err := auth.GenerateToken(testSecret, "alice", enum.UserRoleStudent)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the connection.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.rooms["alice"])
		hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hello := readEvent(t, conn)
	if hello.Type != EventSubscribed || string(hello.Payload) != `{"room":"alice"}` {
		t.Fatalf("greeting: got %s %s", hello.Type, hello.Payload)
	}

	hub.PublishOrderEvent(context.Background(), enum.EventOrderUpdated, testOrder("alice"))
	hub.PublishOrderEvent(context.Background(), enum.EventOrderUpdated, testOrder("alice"))

	for i := 0; i < 2; i++ {
		if received := readEvent(t, conn); received.Type != enum.EventOrderUpdated {
			t.Errorf("expected %s, got %s", enum.EventOrderUpdated, received.Type)
		}
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/orders?token=from-query", nil)
	if got := requestToken(r); got != "from-query" {
		t.Errorf("query token: got %q", got)
	}
	r.Header.Set("Authorization", "Bearer from-header")
	if got := requestToken(r); got != "from-header" {
		t.Errorf("header token: got %q", got)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return ev
}
