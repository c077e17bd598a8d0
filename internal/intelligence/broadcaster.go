package intelligence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// MessageTypeIntelligence tags snapshot frames on the wire.
const MessageTypeIntelligence = "intelligence"

const defaultWriteTimeout = 5 * time.Second

// StreamMessage is the frame written to websocket subscribers.
type StreamMessage struct {
	Type string               `json:"type"`
	Data *SessionIntelligence `json:"data"`
}

// streamConn serializes writes to one connection. A snapshot evaluated
// before the last one sent is skipped, so a connection never goes back in time.
type streamConn struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	lastSent time.Time
}

func (c *streamConn) write(data []byte, evaluatedAt time.Time, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if evaluatedAt.Before(c.lastSent) {
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.lastSent = evaluatedAt
	return nil
}

// Broadcaster fans session snapshots out to websocket connections.
// Publish has the UpdateFunc signature and is registered as a tracker observer.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]*streamConn // sessionID -> connections

	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger, metrics *Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		connections:  make(map[string]map[*websocket.Conn]*streamConn),
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscribe registers conn for a session's snapshots.
func (b *Broadcaster) Subscribe(sessionID string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[sessionID] == nil {
		b.connections[sessionID] = make(map[*websocket.Conn]*streamConn)
	}
	if _, ok := b.connections[sessionID][conn]; !ok {
		b.connections[sessionID][conn] = &streamConn{conn: conn}
		b.metrics.addStreamConnections(1)
	}
}

// Unsubscribe removes conn from every session.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(conn)
}

func (b *Broadcaster) removeLocked(conn *websocket.Conn) {
	for sessionID, conns := range b.connections {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			b.metrics.addStreamConnections(-1)
		}
		if len(conns) == 0 {
			delete(b.connections, sessionID)
		}
	}
}

// Send writes one snapshot to a single connection. A snapshot older than
// the last one the connection received is skipped without error.
func (b *Broadcaster) Send(conn *websocket.Conn, snap *SessionIntelligence) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	b.mu.RLock()
	sc := b.lookupLocked(snap.SessionID, conn)
	b.mu.RUnlock()
	if sc == nil {
		sc = &streamConn{conn: conn}
	}
	return sc.write(data, snap.EvaluatedAt, b.writeTimeout)
}

func (b *Broadcaster) lookupLocked(sessionID string, conn *websocket.Conn) *streamConn {
	if conns, ok := b.connections[sessionID]; ok {
		return conns[conn]
	}
	return nil
}

// Publish sends snap to every subscriber of its session. Connections that
// fail a write are dropped.
func (b *Broadcaster) Publish(snap *SessionIntelligence) {
	if snap == nil {
		return
	}

	b.mu.RLock()
	conns := make([]*streamConn, 0, len(b.connections[snap.SessionID]))
	for _, sc := range b.connections[snap.SessionID] {
		conns = append(conns, sc)
	}
	b.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	// Serialize once
	data, err := encodeSnapshot(snap)
	if err != nil {
		b.logger.Error("failed to marshal intelligence snapshot",
			"session_id", snap.SessionID,
			"error", err)
		return
	}

	var failed []*websocket.Conn
	for _, sc := range conns {
		if err := sc.write(data, snap.EvaluatedAt, b.writeTimeout); err != nil {
			b.logger.Warn("failed to send snapshot to websocket client",
				"session_id", snap.SessionID,
				"error", err)
			failed = append(failed, sc.conn)
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, conn := range failed {
			b.removeLocked(conn)
		}
		b.mu.Unlock()
	}
}

// ConnectionCount returns the number of connections subscribed to a session.
func (b *Broadcaster) ConnectionCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections[sessionID])
}

func encodeSnapshot(snap *SessionIntelligence) ([]byte, error) {
	return json.Marshal(StreamMessage{Type: MessageTypeIntelligence, Data: snap})
}
