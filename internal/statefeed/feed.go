// Package statefeed exposes resolved scene states to external clients over
// WebSocket, one JSON message per engine notification.
package statefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Robertoarce/wakatto-sub005/internal/playback"
)

const (
	// DefaultPort is the default port for the state feed.
	DefaultPort = 8974

	// StateEndpoint is the path for WebSocket connections.
	StateEndpoint = "/scene-state"

	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the maximum inbound message size allowed.
	MaxMessageSize = 512
)

// Player is the slice of the playback engine the feed consumes.
type Player interface {
	Subscribe(fn func(playback.Snapshot)) func()
	Status() playback.Status
	ElapsedTime() time.Duration
	CurrentStates() map[string]playback.CharacterState
	HasScene() bool
}

// Config configures the state feed server.
type Config struct {
	Host string
	Port int
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{Host: "127.0.0.1", Port: DefaultPort}
}

// Feed is a WebSocket server that forwards every playback notification to
// connected clients. New clients receive the current state on connect.
type Feed struct {
	player   Player
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	clients    map[*client]bool
	clientsMu  sync.RWMutex
	register   chan *client
	unregister chan *client

	listener net.Listener
	lastMu   sync.RWMutex
	lastMsg  []byte

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	runningMu   sync.RWMutex
}

// client represents a single WebSocket connection.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// stateMessage is the wire form of one playback snapshot.
type stateMessage struct {
	Status    playback.Status                    `json:"status"`
	ElapsedMS int64                              `json:"elapsedMs"`
	States    map[string]playback.CharacterState `json:"states"`
}

// New creates a state feed for the given player.
func New(player Player, cfg Config, log zerolog.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())

	return &Feed{
		player: player,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The feed binds to loopback by default; remote deployments
				// should restrict origins here.
				return true
			},
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start binds the feed's listener and begins serving. A bind failure is
// returned synchronously.
func (f *Feed) Start() error {
	f.runningMu.Lock()
	if f.running {
		f.runningMu.Unlock()
		return fmt.Errorf("state feed already running")
	}
	f.running = true
	f.runningMu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port))
	if err != nil {
		f.runningMu.Lock()
		f.running = false
		f.runningMu.Unlock()
		return fmt.Errorf("state feed listen: %w", err)
	}
	f.listener = ln

	f.unsubscribe = f.player.Subscribe(f.handleSnapshot)

	f.wg.Add(1)
	go f.runClientManager()

	mux := http.NewServeMux()
	mux.HandleFunc(StateEndpoint, f.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, f.handleHealth)
	mux.HandleFunc("/", f.handleIndex)

	// CORS wrapper for cross-origin viewer access
	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	})

	f.server = &http.Server{Handler: corsHandler}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.log.Info().Str("addr", ln.Addr().String()).Msg("state feed listening")
		if err := f.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			f.log.Error().Err(err).Msg("state feed server error")
		}
	}()

	return nil
}

// Addr returns the bound address, useful when the port was OS-assigned.
func (f *Feed) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop gracefully shuts down the feed.
func (f *Feed) Stop() error {
	f.runningMu.Lock()
	if !f.running {
		f.runningMu.Unlock()
		return nil
	}
	f.running = false
	f.runningMu.Unlock()

	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.cancel()

	f.clientsMu.Lock()
	for c := range f.clients {
		close(c.send)
		c.conn.Close()
		delete(f.clients, c)
	}
	f.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := f.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	f.wg.Wait()

	f.log.Info().Msg("state feed stopped")
	return nil
}

// IsRunning returns whether the feed is currently serving.
func (f *Feed) IsRunning() bool {
	f.runningMu.RLock()
	defer f.runningMu.RUnlock()
	return f.running
}

// ClientCount returns the number of connected WebSocket clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

// runClientManager handles client registration/unregistration.
func (f *Feed) runClientManager() {
	defer f.wg.Done()

	for {
		select {
		case c := <-f.register:
			f.clientsMu.Lock()
			f.clients[c] = true
			total := len(f.clients)
			f.clientsMu.Unlock()
			f.log.Debug().Int("clients", total).Msg("feed client connected")

			f.sendCurrentState(c)

		case c := <-f.unregister:
			f.clientsMu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
				c.conn.Close()
			}
			remaining := len(f.clients)
			f.clientsMu.Unlock()
			f.log.Debug().Int("clients", remaining).Msg("feed client disconnected")

		case <-f.ctx.Done():
			return
		}
	}
}

// sendCurrentState queues the current playback state to a newly connected
// client so it renders something before the next notification.
func (f *Feed) sendCurrentState(c *client) {
	f.lastMu.RLock()
	msg := f.lastMsg
	f.lastMu.RUnlock()

	if msg == nil {
		fresh, err := json.Marshal(stateMessage{
			Status:    f.player.Status(),
			ElapsedMS: f.player.ElapsedTime().Milliseconds(),
			States:    f.player.CurrentStates(),
		})
		if err != nil {
			return
		}
		msg = fresh
	}

	select {
	case c.send <- msg:
	default:
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (f *Feed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case f.register <- c:
	case <-f.ctx.Done():
		conn.Close()
		return
	}

	f.wg.Add(2)
	go f.writePump(c)
	go f.readPump(c)
}

// writePump handles sending messages to the WebSocket client.
func (f *Feed) writePump(c *client) {
	defer f.wg.Done()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-f.ctx.Done():
			return
		}
	}
}

// readPump handles reading messages from the WebSocket client.
func (f *Feed) readPump(c *client) {
	defer f.wg.Done()
	defer func() {
		// During shutdown the manager is gone; Stop already closed the
		// connection.
		select {
		case f.unregister <- c:
		case <-f.ctx.Done():
		}
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		// The feed is one-way; inbound messages are ignored.
	}
}

// handleSnapshot forwards one playback notification to every client.
func (f *Feed) handleSnapshot(snap playback.Snapshot) {
	data, err := json.Marshal(stateMessage{
		Status:    snap.Status,
		ElapsedMS: snap.Elapsed.Milliseconds(),
		States:    snap.States,
	})
	if err != nil {
		f.log.Error().Err(err).Msg("failed to marshal state message")
		return
	}

	f.lastMu.Lock()
	f.lastMsg = data
	f.lastMu.Unlock()

	f.clientsMu.RLock()
	clients := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clientsMu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, drop it
			select {
			case f.unregister <- c:
			case <-f.ctx.Done():
			}
		}
	}
}

// handleHealth responds to health check requests.
func (f *Feed) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status   string          `json:"status"`
		Service  string          `json:"service"`
		Playback playback.Status `json:"playback"`
		HasScene bool            `json:"hasScene"`
		Clients  int             `json:"clients"`
	}{
		Status:   "healthy",
		Service:  "wakatto-scene-feed",
		Playback: f.player.Status(),
		HasScene: f.player.HasScene(),
		Clients:  f.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleIndex provides basic info at the root endpoint.
func (f *Feed) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := struct {
		Name      string   `json:"name"`
		WebSocket string   `json:"websocketEndpoint"`
		Health    string   `json:"healthEndpoint"`
		Statuses  []string `json:"statuses"`
	}{
		Name:      "Wakatto Scene State Feed",
		WebSocket: StateEndpoint,
		Health:    HealthEndpoint,
		Statuses: []string{
			string(playback.StatusIdle),
			string(playback.StatusPlaying),
			string(playback.StatusPaused),
			string(playback.StatusComplete),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
