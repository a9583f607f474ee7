package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// rateFrame is the JSON frame a market-data collaborator pushes over the
// websocket: the full rate table plus a millisecond timestamp.
type rateFrame struct {
	Rates map[string]float64 `json:"rates"`
	TsMs  int64              `json:"ts_ms"`
}

// WSSource keeps the latest snapshot received from a websocket feed and
// serves it to the decision cycle on demand. The read loop runs on its own
// goroutine; Snapshot never blocks on the network.
type WSSource struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu   sync.RWMutex
	last Snapshot
}

func NewWSSource(url string, log *zap.Logger) *WSSource {
	return &WSSource{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
		log: log,
	}
}

// Run connects and consumes frames until ctx is cancelled, reconnecting with
// a short backoff on failures.
func (w *WSSource) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.readLoop(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("ws feed disconnected, reconnecting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (w *WSSource) readLoop(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var f rateFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			w.log.Warn("ws feed: bad frame", zap.Error(err))
			continue
		}
		snap, err := NewSnapshot(f.Rates, time.UnixMilli(f.TsMs))
		if err != nil {
			w.log.Warn("ws feed: rejected malformed rates", zap.Error(err))
			continue
		}
		w.mu.Lock()
		w.last = snap
		w.mu.Unlock()
	}
}

func (w *WSSource) Snapshot(_ context.Context) (Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last.Empty() {
		return Snapshot{}, fmt.Errorf("ws feed: no snapshot received yet")
	}
	return w.last, nil
}
