package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fluxrelay/pipeline"
)

// WebSocketBroadcaster fans pipeline progress out to every connected /ws
// client. It implements pipeline.ProgressReporter.
//
// Client registration and broadcasting run on the Start loop; each client
// has its own buffered send channel drained by a write pump.
type WebSocketBroadcaster struct {
	clients   map[*websocket.Conn]clientInfo
	clientsMu sync.RWMutex

	broadcast  chan WSMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	recent   *CircularBuffer[pipeline.ProgressEvent]
	status   func() InitialData

	pingInterval     time.Duration
	pongWait         time.Duration
	writeWait        time.Duration
	maxMessageSize   int64
	clientBufferSize int

	logger *zap.Logger
}

type clientInfo struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// BroadcasterConfig configures a WebSocketBroadcaster.
type BroadcasterConfig struct {
	PingInterval         time.Duration
	PongWait             time.Duration
	WriteWait            time.Duration
	MaxMessageSize       int64
	BroadcastBufferSize  int
	ClientSendBufferSize int

	// RecentEvents is how many progress events new clients receive on
	// connect.
	RecentEvents int
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
		RecentEvents:         50,
	}
}

// NewWebSocketBroadcaster creates a broadcaster. Call Start to run it.
func NewWebSocketBroadcaster(config BroadcasterConfig, logger *zap.Logger) *WebSocketBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultBroadcasterConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = defaults.BroadcastBufferSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = defaults.ClientSendBufferSize
	}
	if config.RecentEvents <= 0 {
		config.RecentEvents = defaults.RecentEvents
	}

	return &WebSocketBroadcaster{
		clients:          make(map[*websocket.Conn]clientInfo),
		broadcast:        make(chan WSMessage, config.BroadcastBufferSize),
		register:         make(chan *websocket.Conn),
		unregister:       make(chan *websocket.Conn),
		done:             make(chan struct{}),
		recent:           NewCircularBuffer[pipeline.ProgressEvent](config.RecentEvents),
		pingInterval:     config.PingInterval,
		pongWait:         config.PongWait,
		writeWait:        config.WriteWait,
		maxMessageSize:   config.MaxMessageSize,
		clientBufferSize: config.ClientSendBufferSize,
		logger:           logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The HTTP API allows any origin, so the feed does too.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetStatusProvider sets the function used to fill the on-connect snapshot.
func (b *WebSocketBroadcaster) SetStatusProvider(fn func() InitialData) {
	b.status = fn
}

// Start runs the broadcast loop until ctx is cancelled or Close is called.
func (b *WebSocketBroadcaster) Start(ctx context.Context) {
	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()

	b.logger.Debug("broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.stop()
			return

		case <-b.done:
			b.closeAllClients()
			return

		case conn := <-b.register:
			b.addClient(conn)

		case conn := <-b.unregister:
			b.removeClient(conn)

		case message := <-b.broadcast:
			b.broadcastToAll(message)

		case <-pingTicker.C:
			b.sendPingToAll()
		}
	}
}

// Close stops the loop and disconnects every client.
func (b *WebSocketBroadcaster) Close() {
	b.stop()
}

func (b *WebSocketBroadcaster) stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.closeAllClients()
		b.logger.Debug("broadcaster stopped")
	})
}

// HandleConnection upgrades the request and registers the client.
func (b *WebSocketBroadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})

	select {
	case b.register <- conn:
	case <-b.done:
		conn.Close()
		return
	}

	go b.readPump(conn)
}

// Report queues a progress event for every client and keeps it for the
// next on-connect snapshot. It never blocks.
func (b *WebSocketBroadcaster) Report(ev pipeline.ProgressEvent) {
	b.recent.Push(ev)
	b.BroadcastMessage(NewProgressMessage(ev))
}

// BroadcastMessage queues msg for all clients, dropping it if the buffer
// is full.
func (b *WebSocketBroadcaster) BroadcastMessage(msg WSMessage) {
	select {
	case b.broadcast <- msg:
	default:
		b.logger.Warn("broadcast buffer full, dropping message", zap.String("type", msg.Type))
	}
}

// ClientCount returns the number of connected clients.
func (b *WebSocketBroadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// RecentEvents returns the buffered progress events, oldest first.
func (b *WebSocketBroadcaster) RecentEvents() []pipeline.ProgressEvent {
	return b.recent.GetAll()
}

func (b *WebSocketBroadcaster) addClient(conn *websocket.Conn) {
	info := clientInfo{
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, b.clientBufferSize),
	}

	b.clientsMu.Lock()
	b.clients[conn] = info
	total := len(b.clients)
	b.clientsMu.Unlock()

	go b.writePump(conn, info.send)

	var snapshot InitialData
	if b.status != nil {
		snapshot = b.status()
	}
	snapshot.Recent = b.RecentEvents()
	if data, err := json.Marshal(NewInitialMessage(snapshot)); err == nil {
		info.send <- data
	}

	b.logger.Debug("websocket client connected",
		zap.String("remote", info.remoteAddr),
		zap.Int("clients", total))
}

func (b *WebSocketBroadcaster) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	if info, ok := b.clients[conn]; ok {
		close(info.send)
		delete(b.clients, conn)
		conn.Close()
		b.logger.Debug("websocket client disconnected",
			zap.String("remote", info.remoteAddr),
			zap.Duration("connected_for", time.Since(info.connectedAt)),
			zap.Int("clients", len(b.clients)))
	}
}

func (b *WebSocketBroadcaster) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		select {
		case info.send <- data:
		default:
			b.logger.Warn("client send buffer full, disconnecting", zap.String("remote", info.remoteAddr))
			go b.requestUnregister(conn)
		}
	}
}

func (b *WebSocketBroadcaster) sendPingToAll() {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.writeWait))
		if err != nil {
			b.logger.Debug("ping failed", zap.String("remote", info.remoteAddr), zap.Error(err))
			go b.requestUnregister(conn)
		}
	}
}

func (b *WebSocketBroadcaster) requestUnregister(conn *websocket.Conn) {
	select {
	case b.unregister <- conn:
	case <-b.done:
	}
}

// closeAllClients queues a shutdown notice for every client and closes its
// send queue; writePump then sends the close frame and drops the
// connection.
func (b *WebSocketBroadcaster) closeAllClients() {
	notice, _ := json.Marshal(NewErrorMessage(ErrorCodeShuttingDown, msgShuttingDown))

	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for conn, info := range b.clients {
		select {
		case info.send <- notice:
		default:
		}
		close(info.send)
		delete(b.clients, conn)
	}
}

// readPump discards client messages; it exists to process pongs and to
// notice disconnects.
func (b *WebSocketBroadcaster) readPump(conn *websocket.Conn) {
	defer b.requestUnregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func (b *WebSocketBroadcaster) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(b.writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
