package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfeed/binance-data/internal/connection"
)

var pipelineUpgrader = websocket.Upgrader{}

// pipelineServer acks the SUBSCRIBE frame, streams count trade frames, and
// then holds the connection open.
func pipelineServer(t *testing.T, count int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := pipelineUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Method != "SUBSCRIBE" {
			t.Errorf("expected SUBSCRIBE frame, got %s", data)
			return
		}
		ack := fmt.Sprintf(`{"result":null,"id":%d}`, cmd.ID)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}

		for i := 0; i < count; i++ {
			msg := fmt.Sprintf(
				`{"e":"trade","E":%d,"s":"BTCUSDT","t":%d,"p":"100.5","q":"1.0","T":%d,"m":false}`,
				1700000000100+int64(i), i+1, 1700000000000+int64(i))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		conn.ReadMessage()
	}))
}

// The stream session and the writer both run under the root context for the
// whole process lifetime; a healthy session must keep storing records without
// terminating.
func TestPipelineStreamsIntoSink(t *testing.T) {
	const frames = 5

	srv := pipelineServer(t, frames)
	defer srv.Close()

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.WSURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	mgrCfg.SubscribeTimeout = 2 * time.Second
	mgrCfg.BufferSize = 100

	mgr := connection.NewManager(mgrCfg, []connection.Subscription{
		{Symbol: "BTCUSDT", Kind: connection.StreamTrade},
	}, nil)

	sink := &fakeSink{}
	cfg := testWriterConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	w := New(cfg, mgr.Messages(), sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("manager Start: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("writer Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for len(sink.stored()) < frames {
		select {
		case <-mgr.Done():
			t.Fatalf("session terminated while healthy: %v", mgr.Err())
		case <-deadline:
			t.Fatalf("stored %d records, want %d", len(sink.stored()), frames)
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case <-mgr.Done():
		t.Fatalf("session terminated while healthy: %v", mgr.Err())
	default:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := mgr.Stop(stopCtx); err != nil {
		t.Fatalf("manager Stop: %v", err)
	}
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("writer Stop: %v", err)
	}

	got := sink.stored()
	for i, rec := range got[:frames] {
		if rec.TradeID != int64(i+1) {
			t.Errorf("stored[%d].TradeID = %d, want %d", i, rec.TradeID, i+1)
		}
	}
}
