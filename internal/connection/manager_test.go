package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfeed/binance-data/internal/model"
)

var upgrader = websocket.Upgrader{}

// feedServer accepts stream connections, acks the SUBSCRIBE frame, and hands
// the connection to serve for scripted behavior.
func feedServer(t *testing.T, serve func(connNum int, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	var connCount atomic.Int32

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Method != "SUBSCRIBE" {
			t.Errorf("expected SUBSCRIBE frame, got %s", data)
			return
		}
		resp := fmt.Sprintf(`{"result":null,"id":%d}`, cmd.ID)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
			return
		}

		serve(int(connCount.Add(1)), conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.WSURL = url
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond
	cfg.SubscribeTimeout = 2 * time.Second
	cfg.BufferSize = 100
	return cfg
}

func TestManager_SubscribeAndStream(t *testing.T) {
	srv := feedServer(t, func(connNum int, conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			msg := fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","t":%d}`, i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	})
	defer srv.Close()

	subs := []Subscription{
		{Symbol: "BTCUSDT", Kind: StreamTrade},
		{Symbol: "BTCUSDT", Kind: StreamKline, Interval: model.Interval1d},
	}
	m := NewManager(testManagerConfig(wsURL(srv)), subs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var got []RawMessage
	deadline := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case msg := <-m.Messages():
			got = append(got, msg)
		case <-deadline:
			t.Fatalf("timed out, received %d messages", len(got))
		}
	}

	if m.State() != StateStreaming {
		t.Errorf("state = %s, want streaming", m.State())
	}
	if got[0].ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.State() != StateStopped {
		t.Errorf("state after stop = %s, want stopped", m.State())
	}
}

func TestManager_ReconnectsAndResubscribes(t *testing.T) {
	subscribes := make(chan int, 4)

	srv := feedServer(t, func(connNum int, conn *websocket.Conn) {
		subscribes <- connNum
		if connNum == 1 {
			// Deliver one message, then kill the connection.
			conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"BTCUSDT","t":1}`))
			conn.Close()
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"BTCUSDT","t":2}`))
		conn.ReadMessage()
	})
	defer srv.Close()

	subs := []Subscription{{Symbol: "BTCUSDT", Kind: StreamTrade}}
	m := NewManager(testManagerConfig(wsURL(srv)), subs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		m.Stop(stopCtx)
	}()

	var got []RawMessage
	deadline := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-m.Messages():
			got = append(got, msg)
		case <-deadline:
			t.Fatalf("timed out waiting for post-reconnect delivery, received %d", len(got))
		}
	}

	// Both connections must have issued a SUBSCRIBE.
	if n := <-subscribes; n != 1 {
		t.Errorf("first subscribe on conn %d, want 1", n)
	}
	if n := <-subscribes; n != 2 {
		t.Errorf("second subscribe on conn %d, want 2", n)
	}
}

func TestManager_DeliversBufferedFramesOnDisconnect(t *testing.T) {
	const frames = 50

	srv := feedServer(t, func(connNum int, conn *websocket.Conn) {
		if connNum == 1 {
			// Write a full burst and then kill the connection. Everything
			// written here was dequeued off the wire before the failure and
			// must still reach the consumer.
			for i := 0; i < frames; i++ {
				msg := fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","t":%d}`, i)
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
			conn.Close()
			return
		}
		conn.ReadMessage()
	})
	defer srv.Close()

	subs := []Subscription{{Symbol: "BTCUSDT", Kind: StreamTrade}}
	m := NewManager(testManagerConfig(wsURL(srv)), subs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		m.Stop(stopCtx)
	}()

	var got []RawMessage
	deadline := time.After(10 * time.Second)
	for len(got) < frames {
		select {
		case msg := <-m.Messages():
			got = append(got, msg)
		case <-deadline:
			t.Fatalf("received %d of %d frames sent before disconnect", len(got), frames)
		}
	}

	for i, msg := range got {
		var ev struct {
			TradeID int64 `json:"t"`
		}
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.TradeID != int64(i) {
			t.Fatalf("frame %d delivered out of order: trade id %d", i, ev.TradeID)
		}
	}
}

func TestManager_ReconnectExhaustion(t *testing.T) {
	// Nothing listens on the target port, so every dial fails.
	cfg := testManagerConfig("ws://127.0.0.1:1")
	cfg.MaxReconnects = 2

	m := NewManager(cfg, []Subscription{{Symbol: "BTCUSDT", Kind: StreamTrade}}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-m.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not terminate after exhausting reconnects")
	}

	if err := m.Err(); err != ErrReconnectExhausted {
		t.Errorf("Err() = %v, want ErrReconnectExhausted", err)
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want stopped", m.State())
	}
}

func TestManager_StartWithoutSubscriptions(t *testing.T) {
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), nil, nil)
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start should fail with no subscriptions")
	}
}

func TestSubscriptionStreamName(t *testing.T) {
	cases := []struct {
		sub  Subscription
		want string
	}{
		{Subscription{Symbol: "BTCUSDT", Kind: StreamTrade}, "btcusdt@trade"},
		{Subscription{Symbol: "ethusdt", Kind: StreamKline, Interval: model.Interval1d}, "ethusdt@kline_1d"},
		{Subscription{Symbol: "BNBUSDT", Kind: StreamKline, Interval: model.Interval1m}, "bnbusdt@kline_1m"},
	}

	for _, tc := range cases {
		if got := tc.sub.StreamName(); got != tc.want {
			t.Errorf("StreamName(%+v) = %q, want %q", tc.sub, got, tc.want)
		}
	}
}

func TestParseAck(t *testing.T) {
	if _, isAck := parseAck([]byte(`{"result":null,"id":3}`)); !isAck {
		t.Error("ack frame not recognized")
	}
	if _, isAck := parseAck([]byte(`{"e":"trade","s":"BTCUSDT"}`)); isAck {
		t.Error("data frame misclassified as ack")
	}
	if _, isAck := parseAck([]byte(`not json`)); isAck {
		t.Error("garbage misclassified as ack")
	}
}
