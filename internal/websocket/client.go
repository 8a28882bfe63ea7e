package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"

	"github.com/hearthside/pantrysync/internal/hub"
	"github.com/hearthside/pantrysync/internal/model"
)

const pingInterval = 30 * time.Second

// Event is the wire frame emitted to connected clients. Every accepted
// write produces one dataUpdated event carrying the full document.
type Event struct {
	Type     string         `json:"type"`
	Revision int64          `json:"revision"`
	Data     model.Document `json:"data"`
}

// EventDataUpdated announces a new authoritative document snapshot.
const EventDataUpdated = "dataUpdated"

// Client bridges one WebSocket connection to a hub subscription.
type Client struct {
	conn   *ws.Conn
	hub    *hub.Hub
	logger *slog.Logger
}

// NewClient creates a Client for an accepted connection.
func NewClient(h *hub.Hub, conn *ws.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, hub: h, logger: logger}
}

// Run subscribes to the hub, starts the write pump, and runs the read
// pump. It blocks until the connection closes, then unsubscribes. The
// first frame written is always the catch-up snapshot.
func (c *Client) Run(ctx context.Context) {
	sub, cancel := c.hub.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	go c.writePump(ctx, sub)
	c.readPump(ctx)
}

// readPump reads and discards all incoming frames. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the subscription and writes dataUpdated events. It
// also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context, sub *hub.Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			frame, err := json.Marshal(Event{
				Type:     EventDataUpdated,
				Revision: snap.Revision,
				Data:     snap.Doc,
			})
			if err != nil {
				c.logger.Error("marshal event", "error", err)
				continue
			}
			if err := c.conn.Write(ctx, ws.MessageText, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
