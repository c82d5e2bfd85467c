package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/buzzlang/buzz/internal/buzzlog"
)

// bridge is the optional -net observer: it serves a websocket endpoint
// that streams a JSON state snapshot to every connected client after
// each step, so an external dashboard can watch a run live instead of
// reading the terminal table.
type bridge struct {
	log      *buzzlog.Logger
	runID    uuid.UUID
	upgrader websocket.Upgrader
	srv      *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newBridge(log *buzzlog.Logger) *bridge {
	return &bridge{
		log:      log,
		runID:    uuid.New(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

type wireStep struct {
	RunID string          `json:"run_id"`
	Step  uint32          `json:"step"`
	Bots  []robotSnapshot `json:"robots"`
}

func (b *bridge) serve(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleConn)
	b.srv = &http.Server{Addr: addr, Handler: mux}
	b.log.Info("websocket bridge listening", "addr", addr, "run", b.runID)
	if err := b.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		b.log.Error("websocket bridge stopped", "err", err)
	}
}

func (b *bridge) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Drain (and discard) anything the client sends, so the connection
	// is detected as closed the moment the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (b *bridge) notify(step uint32, snap []robotSnapshot) {
	payload, err := json.Marshal(wireStep{RunID: b.runID.String(), Step: step, Bots: snap})
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

func (b *bridge) close() {
	if b.srv != nil {
		b.srv.Close()
	}
}
