package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/identity"
)

// Transport errors returned by Send.
var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	// WriteWait is the time allowed to write a frame to the peer.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong from the peer.
	PongWait time.Duration
	// PingPeriod must be less than PongWait.
	PingPeriod time.Duration
	// MaxMessageSize is the read limit for inbound frames.
	MaxMessageSize int64
	// SendQueueSize is the outbound buffer per connection.
	SendQueueSize   int
	ReadBufferSize  int
	WriteBufferSize int
	// CheckOrigin validates the Origin header. Nil accepts same-origin only.
	CheckOrigin func(r *http.Request) bool
}

// DefaultTransportConfig returns the defaults used when the config file is silent.
func DefaultTransportConfig() TransportConfig {
	pongWait := 60 * time.Second
	return TransportConfig{
		WriteWait:       10 * time.Second,
		PongWait:        pongWait,
		PingPeriod:      (pongWait * 9) / 10,
		MaxMessageSize:  64 << 10,
		SendQueueSize:   64,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// WebSocketServer upgrades HTTP requests and serves them on a hub.
type WebSocketServer struct {
	cfg      TransportConfig
	upgrader websocket.Upgrader
}

// NewWebSocketServer creates a server with cfg.
func NewWebSocketServer(cfg TransportConfig) *WebSocketServer {
	return &WebSocketServer{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Serve upgrades the request and blocks until the connection ends.
// handshake carries the verified claims and the request query.
func (s *WebSocketServer) Serve(hub *Hub, w http.ResponseWriter, r *http.Request, handshake identity.Handshake) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &WebSocketConn{
		id:        uuid.NewString(),
		ws:        ws,
		handshake: handshake,
		send:      make(chan []byte, s.cfg.SendQueueSize),
		done:      make(chan struct{}),
		cfg:       s.cfg,
	}
	conn.log = hub.log.With(zap.String("connection_id", conn.id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() { //nolint:naked-goroutine // one writer per websocket connection
		defer close(writerDone)
		conn.writePump()
	}()

	if !hub.OnConnect(ctx, conn) {
		<-writerDone
		return nil
	}

	readErr := conn.readPump(ctx, hub)
	hub.OnDisconnect(ctx, conn, readErr)
	conn.Abort()
	<-writerDone
	return nil
}

// WebSocketConn is a Conn over gorilla/websocket. Reads happen on the serving
// goroutine, writes on a dedicated pump fed by a bounded queue.
type WebSocketConn struct {
	id        string
	ws        *websocket.Conn
	handshake identity.Handshake
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	cfg       TransportConfig
	log       *zap.Logger
}

// ID implements Conn.
func (c *WebSocketConn) ID() string { return c.id }

// Handshake implements Conn.
func (c *WebSocketConn) Handshake() identity.Source { return c.handshake }

// Send implements Conn. A full queue drops the frame.
func (c *WebSocketConn) Send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// Abort implements Conn.
func (c *WebSocketConn) Abort() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WebSocketConn) readPump(ctx context.Context, hub *Hub) error {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read failed", zap.Error(err))
				return err
			}
			return nil
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.log.Debug("Malformed frame ignored", zap.Error(err))
			continue
		}
		switch frame.Type {
		case FrameInvoke:
			hub.Invoke(ctx, c, frame)
		case FramePing:
			_ = c.Send(Frame{Type: FramePong})
		default:
			c.log.Debug("Frame ignored", zap.String("type", string(frame.Type)))
		}
	}
}

func (c *WebSocketConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Websocket write failed", zap.Error(err))
				c.Abort()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Abort()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}
