package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cta-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Hub fans bus events out to websocket clients. It subscribes to the
// bus once; slow clients drop messages instead of stalling dispatch.
type Hub struct {
	mu      sync.Mutex
	clients map[chan wsMessage]struct{}
}

// NewHub registers the hub on the bus for UI-relevant event kinds.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{clients: make(map[chan wsMessage]struct{})}
	for _, kind := range []events.Kind{
		events.KindTick, events.KindOrder, events.KindTrade,
		events.KindStrategy, events.KindStopOrder, events.KindLog,
	} {
		bus.Subscribe(kind, h.forward)
	}
	return h
}

func (h *Hub) forward(ev events.Event) {
	msg := wsMessage{Kind: string(ev.Kind), Data: ev.Data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default: // client is behind, drop
		}
	}
}

func (h *Hub) add() chan wsMessage {
	ch := make(chan wsMessage, 100)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) remove(ch chan wsMessage) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (s *Server) websocketStream(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ch := hub.add()
		defer hub.remove(ch)

		// Reader goroutine: detect client disconnect.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg := <-ch:
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
