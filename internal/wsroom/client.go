package wsroom

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roomservice"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Publish payloads are small field updates, not attachments; 64KB is
	// generous headroom over any realistic room snapshot delta.
	maxMessageSize = 65536
)

// Client is one WebSocket connection bound to a single room, in either
// direction spec.md allows: a consumer receiving snapshot/update frames,
// or a producer whose inbound frames become Publish calls.
type Client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	roomName string
	producer bool
	svc      *roomservice.Service
	logger   *slog.Logger
}

// NewClient wires a fresh connection to roomName. If producer is true,
// inbound frames are forwarded to Service.Publish; otherwise the
// connection is joined as a consumer and Room callbacks flow out as
// frames.
func NewClient(conn *websocket.Conn, roomName string, producer bool, svc *roomservice.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:       uuid.New(),
		conn:     conn,
		send:     make(chan []byte, 256),
		roomName: roomName,
		producer: producer,
		svc:      svc,
		logger:   logger,
	}
}

// Run drives the connection until it closes or ctx is cancelled. For
// consumers it joins the room first so the initial snapshot frame is
// queued before the write pump starts draining send.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var r *room.Room
	if !c.producer {
		var err error
		r, err = c.svc.GetRoom(c.roomName, room.OptionsInput{})
		if err != nil {
			c.sendError("join_failed", err.Error())
			_ = c.conn.Close()
			return
		}
		if err := r.Join(ctx, c.id, c.onData, nil); err != nil {
			c.sendError("join_failed", err.Error())
			_ = c.conn.Close()
			return
		}
		defer r.Leave(c.id)
	}

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Client) onData(fullData, newData map[string]any, _ any) {
	if newData == nil {
		frame, err := NewFrame(EventTypeSnapshot, SnapshotPayload{FullData: fullData})
		if err != nil {
			c.logger.Error("encode snapshot frame", "error", err)
			return
		}
		c.enqueue(frame)
		return
	}
	frame, err := NewFrame(EventTypeUpdate, UpdatePayload{FullData: fullData, NewData: newData})
	if err != nil {
		c.logger.Error("encode update frame", "error", err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err, "room", c.roomName)
			}
			return
		}

		if !c.producer {
			continue // consumers don't send publish frames
		}

		var payload PublishPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			c.sendError("invalid_payload", "failed to parse publish payload")
			continue
		}
		if err := c.svc.Publish(ctx, c.roomName, payload, room.OptionsInput{}); err != nil {
			c.sendError("publish_failed", err.Error())
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) enqueue(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("marshal frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping frame", "room", c.roomName)
	}
}

func (c *Client) sendError(code, message string) {
	frame, err := NewFrame(EventTypeError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.enqueue(frame)
}
