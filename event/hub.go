package event

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512

	clientBuffer = 64
	// Ticks queued beyond this are dropped before fan-out.
	maxPendingTicks = 256
)

// Disconnector is told when a participant's last connection closes.
type Disconnector interface {
	Disconnect(participant string) bool
}

type client struct {
	participant string
	conn        *websocket.Conn
	send        chan []byte
}

// Hub keeps the websocket connections of participants and fans round
// events out to them. Publish only queues; delivery happens in Run.
type Hub struct {
	log             *slog.Logger
	upgrader        websocket.Upgrader
	onClose         Disconnector
	reliableTimeout time.Duration

	qmu     sync.Mutex
	pending []round.Event
	ticks   int
	notify  chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
	conns   map[string]int
}

func NewHub(log *slog.Logger, onClose Disconnector) *Hub {
	return &Hub{
		log: log.With(slog.String("component", "event.hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		onClose:         onClose,
		reliableTimeout: time.Second,
		notify:          make(chan struct{}, 1),
		clients:         make(map[*client]struct{}),
		conns:           make(map[string]int),
	}
}

// SetDisconnector sets who is told about closed participants. It must be
// called before the hub serves connections.
func (h *Hub) SetDisconnector(d Disconnector) {
	h.onClose = d
}

// Publish queues ev for delivery and never blocks.
func (h *Hub) Publish(ev round.Event) {
	h.qmu.Lock()
	if !ev.Reliable() {
		if h.ticks >= maxPendingTicks {
			h.qmu.Unlock()
			return
		}
		h.ticks++
	}
	h.pending = append(h.pending, ev)
	h.qmu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run delivers queued events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.notify:
			h.qmu.Lock()
			batch := h.pending
			h.pending = nil
			h.ticks = 0
			h.qmu.Unlock()

			for _, ev := range batch {
				h.deliver(ev)
			}
		}
	}
}

func (h *Hub) deliver(ev round.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", sl.Err(err))
		return
	}

	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		if !ev.Reliable() {
			select {
			case c.send <- data:
			default:
			}
			continue
		}
		t := time.NewTimer(h.reliableTimeout)
		select {
		case c.send <- data:
		case <-t.C:
			slow = append(slow, c)
		}
		t.Stop()
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("client too slow, closing",
			slog.String("participant", c.participant),
			slog.String("event", string(ev.Type)),
		)
		h.remove(c)
	}
}

// ServeWS upgrades the request and registers the participant named by the
// "participant" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		http.Error(w, "participant is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", sl.Err(err))
		return
	}

	c := &client{
		participant: participant,
		conn:        conn,
		send:        make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.conns[participant]++
	h.mu.Unlock()

	h.log.Debug("client connected", slog.String("participant", participant))

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// remove unregisters c and closes its send queue. The participant is
// disconnected once their last connection is gone.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.conns[c.participant]--
	last := h.conns[c.participant] == 0
	if last {
		delete(h.conns, c.participant)
	}
	h.mu.Unlock()

	h.log.Debug("client disconnected", slog.String("participant", c.participant))

	if last && h.onClose != nil && h.onClose.Disconnect(c.participant) {
		h.log.Info("bet forfeited on disconnect", slog.String("participant", c.participant))
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}

// readPump discards inbound messages and detects the connection closing.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("unexpected close", slog.String("participant", c.participant), sl.Err(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("failed to write message", slog.String("participant", c.participant), sl.Err(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
