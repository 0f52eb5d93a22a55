package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradesim/internal/monitor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans monitor updates out to websocket subscribers. Slow subscribers are
// dropped rather than allowed to block the monitor.
type hub struct {
	mu   sync.Mutex
	subs map[chan monitor.SymbolStatus]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan monitor.SymbolStatus]struct{})}
}

func (h *hub) subscribe() chan monitor.SymbolStatus {
	ch := make(chan monitor.SymbolStatus, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan monitor.SymbolStatus) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) broadcast(st monitor.SymbolStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- st:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (s *Server) handleLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	for st := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(st); err != nil {
			return
		}
	}
}
