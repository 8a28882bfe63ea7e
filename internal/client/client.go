// Package client is the network transport for a sync session: plain
// HTTP for reads and compare-and-swap writes, a WebSocket for the push
// channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ws "github.com/coder/websocket"

	"github.com/hearthside/pantrysync/internal/model"
	"github.com/hearthside/pantrysync/internal/session"
	wsevent "github.com/hearthside/pantrysync/internal/websocket"
)

const (
	requestTimeout     = 10 * time.Second
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Client implements session.Transport against a pantrysync server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Get fetches the authoritative document and revision.
func (c *Client) Get(ctx context.Context) (model.Document, int64, error) {
	var doc model.Document

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data", nil)
	if err != nil {
		return doc, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return doc, 0, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return doc, 0, fmt.Errorf("fetch document: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return doc, 0, fmt.Errorf("decode document: %w", err)
	}
	return doc, doc.Revision, nil
}

type putResponse struct {
	Message  string `json:"message"`
	Revision int64  `json:"revision"`
}

// Put attempts a compare-and-swap write. A 409 is a rejection, not an
// error: the response body carries the authoritative document for the
// caller to rebase from.
func (c *Client) Put(ctx context.Context, doc model.Document, expectedRevision int64) (session.PutResult, error) {
	doc.Revision = expectedRevision
	body, err := json.Marshal(doc)
	if err != nil {
		return session.PutResult{}, fmt.Errorf("marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/data", bytes.NewReader(body))
	if err != nil {
		return session.PutResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.PutResult{}, fmt.Errorf("put document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var ok putResponse
		if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
			return session.PutResult{}, fmt.Errorf("decode response: %w", err)
		}
		return session.PutResult{Accepted: true, Revision: ok.Revision}, nil
	case http.StatusConflict:
		var current model.Document
		if err := json.NewDecoder(resp.Body).Decode(&current); err != nil {
			return session.PutResult{}, fmt.Errorf("decode conflict body: %w", err)
		}
		return session.PutResult{Accepted: false, Revision: current.Revision, Current: current}, nil
	default:
		return session.PutResult{}, fmt.Errorf("put document: unexpected status %d", resp.StatusCode)
	}
}

// Listen dials the push channel and feeds every dataUpdated event to
// onSnapshot (normally Session.OnBroadcast). It reconnects with capped
// exponential backoff and returns when ctx is cancelled. On every
// (re)connect the server sends a catch-up snapshot as the first event.
func (c *Client) Listen(ctx context.Context, onSnapshot func(model.Document, int64)) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := ws.Dial(ctx, wsURL, nil)
		if err != nil {
			c.logger.Warn("push channel dial failed", "error", err)
		} else {
			delay = reconnectBaseDelay
			c.readEvents(ctx, conn, onSnapshot)
			conn.Close(ws.StatusNormalClosure, "")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *Client) readEvents(ctx context.Context, conn *ws.Conn, onSnapshot func(model.Document, int64)) {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var event wsevent.Event
		if err := json.Unmarshal(frame, &event); err != nil {
			c.logger.Warn("malformed push event", "error", err)
			continue
		}
		if event.Type != wsevent.EventDataUpdated {
			continue
		}
		onSnapshot(event.Data, event.Revision)
	}
}
