package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"meetupAPI/internal/logger"
	"meetupAPI/internal/types/leaderboard"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Time allowed to process one inbound position.
	ingestTimeout = 5 * time.Second
)

const ActionPosition = "position"

// WsPayload is what a client may send over its room channel.
type WsPayload struct {
	Action    string     `json:"action"`
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Online    *bool      `json:"online"`
	Timestamp *time.Time `json:"timestamp"`
}

// PositionIngester is the part of the location service a socket can drive.
type PositionIngester interface {
	HandlePositionUpdate(ctx context.Context, sample PositionSample) error
}

// IngestFunc adapts a function to PositionIngester.
type IngestFunc func(ctx context.Context, sample PositionSample) error

func (f IngestFunc) HandlePositionUpdate(ctx context.Context, sample PositionSample) error {
	return f(ctx, sample)
}

// Client sits between one websocket connection and its room subscription.
// Ingest is nil for watch-only connections.
type Client struct {
	Dispatcher *BroadcastDispatcher
	Subscriber *Subscriber
	Conn       *websocket.Conn
	Ingest     PositionIngester

	replies chan []byte
}

func NewClient(dispatcher *BroadcastDispatcher, sub *Subscriber, conn *websocket.Conn, ingest PositionIngester) *Client {
	return &Client{
		Dispatcher: dispatcher,
		Subscriber: sub,
		Conn:       conn,
		Ingest:     ingest,
		replies:    make(chan []byte, 4),
	}
}

// ReadPump handles messages coming FROM the frontend
func (c *Client) ReadPump() {
	defer func() {
		c.Dispatcher.Unsubscribe(c.Subscriber)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[room %s] subscriber %s read error: %v", c.Subscriber.RoomID, c.Subscriber.ID, err)
			}
			return
		}

		var payload WsPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			c.replyError("malformed message")
			continue
		}

		switch payload.Action {
		case ActionPosition:
			c.handlePosition(payload)
		default:
			c.replyError("unknown action")
		}
	}
}

func (c *Client) handlePosition(payload WsPayload) {
	if c.Ingest == nil || c.Subscriber.RoomUserID == "" {
		c.replyError("connection is watch-only")
		return
	}
	if payload.Lat == nil || payload.Lng == nil {
		c.replyError("lat and lng are required")
		return
	}

	sample := PositionSample{
		RoomID:     c.Subscriber.RoomID,
		RoomUserID: c.Subscriber.RoomUserID,
		Lat:        *payload.Lat,
		Lng:        *payload.Lng,
		Online:     true,
	}
	if payload.Online != nil {
		sample.Online = *payload.Online
	}
	if payload.Timestamp != nil {
		sample.Timestamp = payload.Timestamp.UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if err := c.Ingest.HandlePositionUpdate(ctx, sample); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCoordinates), errors.Is(err, ErrNotMember):
			c.replyError(err.Error())
		default:
			c.replyError("failed to process position")
		}
	}
}

// replyError answers only this client. A full reply buffer drops the reply.
func (c *Client) replyError(msg string) {
	data, err := json.Marshal(leaderboard.Message{Action: leaderboard.ActionError, Error: msg})
	if err != nil {
		return
	}
	select {
	case c.replies <- data:
	default:
	}
}

// WritePump handles messages going TO the frontend
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	messages := c.Subscriber.Messages()
	for {
		select {
		case message, ok := <-messages:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case reply := <-c.replies:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
