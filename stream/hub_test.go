package stream_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/stream"
)

func dialHub(t *testing.T, hub *stream.Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Registration runs through the hub loop; wait for it before emitting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHubForwardsEvents(t *testing.T) {
	emitter := events.NewEmitter()
	hub := stream.NewHub(emitter)
	hub.Start()
	defer hub.Stop()

	conn := dialHub(t, hub)

	emitter.Emit(events.Event{
		Type:        events.EventTicketSold,
		TxID:        "tx-1",
		BlockHeight: 7,
		Data:        map[string]any{"competition_id": uint64(3), "buyer": "alice"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != events.EventTicketSold {
		t.Errorf("type: got %s want %s", got.Type, events.EventTicketSold)
	}
	if got.TxID != "tx-1" || got.BlockHeight != 7 {
		t.Errorf("envelope: %+v", got)
	}
	if buyer, _ := got.Data["buyer"].(string); buyer != "alice" {
		t.Errorf("data: %+v", got.Data)
	}
}

func TestHubIgnoresUnsubscribedEventTypes(t *testing.T) {
	emitter := events.NewEmitter()
	hub := stream.NewHub(emitter)
	hub.Start()
	defer hub.Stop()

	conn := dialHub(t, hub)

	// Executor-internal events are not streamed.
	emitter.Emit(events.Event{Type: events.EventTxExecuted, TxID: "hidden"})
	emitter.Emit(events.Event{Type: events.EventCompetitionDrawn, TxID: "visible"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TxID != "visible" {
		t.Errorf("first streamed event: got %s want the drawn event", got.TxID)
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	emitter := events.NewEmitter()
	hub := stream.NewHub(emitter)
	hub.Start()

	conn := dialHub(t, hub)
	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read failure after hub stop")
	}
}
