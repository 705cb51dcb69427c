package server

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const (
	previewWriteWait  = 5 * time.Second
	previewPongWait   = 60 * time.Second
	previewPingPeriod = previewPongWait * 9 / 10
)

// PreviewMessage is pushed to preview clients. Type is "artifact" or "reload".
type PreviewMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Revision  uint64 `json:"revision,omitempty"`
	HTML      string `json:"html,omitempty"`
}

type previewClient struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex // serializes writers
}

func (c *previewClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(previewWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// PreviewHub fans committed artifacts out to websocket clients watching a session.
type PreviewHub struct {
	mu       sync.RWMutex
	clients  map[*previewClient]struct{}
	upgrader websocket.Upgrader
	closed   bool
	logger   zerolog.Logger
}

func NewPreviewHub(allowedOrigins []string, logger zerolog.Logger) *PreviewHub {
	h := &PreviewHub{
		clients: make(map[*previewClient]struct{}),
		logger:  logger.With().Str("component", "preview_hub").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if originAllowed(allowedOrigins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return h
}

// Clients returns the number of connected preview clients.
func (h *PreviewHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and keeps the client registered until it disconnects.
func (h *PreviewHub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string, initial *PreviewMessage) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &previewClient{conn: conn, sessionID: sessionID}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("session_id", sessionID).Int("clients", h.Clients()).Msg("preview client connected")

	if initial != nil {
		if data, err := sonic.Marshal(initial); err == nil {
			if err := client.write(websocket.TextMessage, data); err != nil {
				h.drop(client)
				return
			}
		}
	}

	done := make(chan struct{})
	go h.keepAlive(client, done)

	// Clients only listen; reading drives pong handling and close detection.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(previewPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(previewPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.drop(client)
}

func (h *PreviewHub) keepAlive(c *previewClient, done <-chan struct{}) {
	ticker := time.NewTicker(previewPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends msg to every client of sessionID, or to all clients when
// sessionID is empty. Clients that fail to keep up are dropped.
func (h *PreviewHub) Broadcast(sessionID string, msg PreviewMessage) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode preview message")
		return
	}

	h.mu.RLock()
	targets := make([]*previewClient, 0, len(h.clients))
	for c := range h.clients {
		if sessionID == "" || c.sessionID == sessionID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, c := range targets {
		wg.Go(func() {
			if err := c.write(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("session_id", c.sessionID).Msg("dropping preview client")
				h.drop(c)
			}
		})
	}
	wg.Wait()

	h.logger.Debug().Str("type", msg.Type).Str("session_id", sessionID).Int("clients", len(targets)).Msg("preview broadcast")
}

func (h *PreviewHub) drop(c *previewClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.conn.Close()
	}
}

// Close disconnects every client and refuses new ones.
func (h *PreviewHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*previewClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		c.conn.Close()
	}
}
