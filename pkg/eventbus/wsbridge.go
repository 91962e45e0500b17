package eventbus

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSBridge forwards the Ready, Failed, Translated and Diagnostic events of
// a Bus (not CaptureCompleted) to locally-connected overlay renderer
// clients as JSON frames over a websocket. The overlay renderer
// itself is an external collaborator (spec §1); this is the transport that
// lets the core dispatch to it without importing any rendering code. It
// promotes gorilla/websocket from an indirect, unused teacher dependency to
// a directly wired one.
type WSBridge struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	log      *slog.Logger
}

// NewWSBridge wires itself to those four topics on bus and starts forwarding in
// background goroutines; call Handler to obtain the http.HandlerFunc to
// mount for overlay clients to connect to.
func NewWSBridge(bus *Bus, log *slog.Logger) *WSBridge {
	if log == nil {
		log = slog.Default()
	}
	b := &WSBridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
		log:   log,
	}

	go forward(b, bus.Ready.Subscribe(64), "aggregated_chunks_ready")
	go forward(b, bus.Failed.Subscribe(64), "aggregated_chunks_failed")
	go forward(b, bus.Translated.Subscribe(256), "translation_with_bounds_completed")
	go forward(b, bus.Diagnostic.Subscribe(256), "pipeline_diagnostic")

	return b
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func forward[T any](b *WSBridge, ch <-chan T, eventType string) {
	for v := range ch {
		b.broadcast(envelope{Type: eventType, Payload: v})
	}
}

func (b *WSBridge) broadcast(e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		b.log.Debug("eventbus: failed to marshal event for overlay bridge", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.log.Debug("eventbus: overlay connection write failed, dropping", "error", err)
			conn.Close()
			delete(b.conns, conn)
		}
	}
}

// Handler upgrades incoming HTTP requests to websocket connections and
// registers them as overlay subscribers.
func (b *WSBridge) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("eventbus: overlay websocket upgrade failed", "error", err)
			return
		}
		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()

		// Drain and discard any client->server traffic so the read
		// deadline/ping machinery detects a dead overlay promptly; the
		// bridge itself never expects inbound payloads.
		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.conns, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// ConnectedOverlays returns the current count of connected overlay clients.
func (b *WSBridge) ConnectedOverlays() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}
