package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-advisor/internal/model"
	"signal-advisor/internal/store/memory"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestHubPublishReachesClient(t *testing.T) {
	hub := NewHub(16, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn := dialWS(t, srv, "/")
	waitForClients(t, hub, 1)

	pid := model.PositionRef(7)
	order := model.Order{ID: 3, Symbol: "ABC", Type: model.OrderSell, Price: 120, Quantity: 10, IsExit: true, PositionID: pid}
	if err := hub.PublishOrders(context.Background(), []model.Order{order}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Seq != 1 || env.Channel != channelOrders || env.Symbol != "ABC" || env.Replay {
		t.Errorf("envelope = %+v", env)
	}
	var got model.Order
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if got.ID != 3 || got.Type != model.OrderSell || got.PositionID == nil || *got.PositionID != 7 {
		t.Errorf("order = %+v", got)
	}
}

func TestHubBackfillSince(t *testing.T) {
	hub := NewHub(16, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	orders := []model.Order{
		{ID: 1, Symbol: "ABC", Type: model.OrderBuy, Price: 50, Quantity: 2},
		{ID: 2, Symbol: "XYZ", Type: model.OrderBuy, Price: 10, Quantity: 5},
	}
	if err := hub.PublishOrders(context.Background(), orders); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if hub.Seq() != 2 {
		t.Fatalf("seq = %d, want 2", hub.Seq())
	}

	conn := dialWS(t, srv, "/?since=1")
	env := readEnvelope(t, conn)
	if env.Seq != 2 || env.Symbol != "XYZ" || !env.Replay {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHubSymbolFilterThroughRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(16, quietLogger())
	s := NewServer(memory.New(), hub, Options{}, quietLogger())
	srv := httptest.NewServer(s.Router)
	defer srv.Close()
	defer hub.Close()

	conn := dialWS(t, srv, "/ws?symbol=xyz")
	waitForClients(t, hub, 1)

	orders := []model.Order{
		{ID: 1, Symbol: "ABC", Type: model.OrderBuy, Price: 50, Quantity: 2},
		{ID: 2, Symbol: "XYZ", Type: model.OrderBuy, Price: 10, Quantity: 5},
	}
	if err := hub.PublishOrders(context.Background(), orders); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Symbol != "XYZ" || env.Seq != 2 {
		t.Errorf("envelope = %+v, want only XYZ", env)
	}
}

func TestHubRemovesClosedClient(t *testing.T) {
	hub := NewHub(16, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "/")
	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)

	if err := hub.PublishOrders(context.Background(), []model.Order{{ID: 1, Symbol: "ABC"}}); err != nil {
		t.Fatalf("publish with no clients: %v", err)
	}
}

func TestReplayBufferWraparound(t *testing.T) {
	rb := newReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}
	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got := rb.Since(0)
	if len(got) != 5 {
		t.Fatalf("Since(0) = %d entries, want 5", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 4; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
	if got := rb.Since(6); len(got) != 2 || got[0].Seq != 7 {
		t.Errorf("Since(6) = %+v", got)
	}
}
