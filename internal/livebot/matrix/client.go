// Package matrix connects the bot to Matrix rooms through mautrix.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/retry"
)

// Config holds the Matrix connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are the room IDs the bot joins and answers in.
	Rooms []string
	// DB persists the sync token. When nil the position is kept in memory
	// and room history is replayed after a restart.
	DB *sql.DB
}

// Message is an accepted inbound text message.
type Message struct {
	RoomID  string
	Sender  string
	EventID string
	Body    string
}

// backlogGrace is how far before Start a message may have been sent and
// still be answered. Older messages replayed by the first sync are ignored.
const backlogGrace = 5 * time.Minute

// Handler processes one accepted message.
type Handler func(ctx context.Context, msg Message)

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	handler Handler
	// notBefore is the earliest event timestamp (ms) answered; 0 accepts all.
	notBefore int64
}

// New creates a client. No network calls are made until Start.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if config.DB != nil {
		client.Store = NewSyncStore(config.DB)
		slog.Info("matrix: using persistent sync store")
	} else {
		slog.Warn("matrix: no database configured, sync position is kept in memory")
	}
	return &Client{client: client, config: config, stopCh: make(chan struct{})}, nil
}

// Start joins the configured rooms and syncs in the background,
// reconnecting with exponential backoff until Stop is called.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	c.handler = handler
	c.notBefore = time.Now().Add(-backlogGrace).UnixMilli()

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.onMessage)

	for _, room := range c.config.Rooms {
		if err := c.join(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", room, err)
		}
	}

	go c.syncLoop()
	return nil
}

// reconnect is the wait between sync attempts: 2s doubling up to 5m.
var reconnect = retry.Config{
	InitialDelay: 2 * time.Second,
	MaxDelay:     5 * time.Minute,
	Backoff:      retry.Exponential,
}

// ReconnectDelay returns the wait after the given consecutive sync failure
// (1-based).
func ReconnectDelay(failures int) time.Duration { return reconnect.Delay(failures) }

func (c *Client) syncLoop() {
	failures := 0
	for {
		began := time.Now()
		err := c.client.Sync()
		if err == nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		// A sync that stayed up longer than the longest wait starts over.
		if time.Since(began) > reconnect.MaxDelay {
			failures = 0
		}
		failures++
		delay := ReconnectDelay(failures)
		slog.Error("matrix: sync stopped, reconnecting", "err", err, "attempt", failures, "backoff", delay)
		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// Stop ends the sync loop.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendNotice posts text as an m.notice, which other bots ignore.
func (c *Client) SendNotice(ctx context.Context, roomID, text string) error {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// SetTyping toggles the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// Accept converts evt into a Message when the bot should answer it: a text
// message from someone else in one of the configured rooms, sent no earlier
// than backlogGrace before Start.
func (c *Client) Accept(evt *event.Event) (Message, bool) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return Message{}, false
	}
	if evt.Timestamp < c.notBefore {
		slog.Debug("matrix: ignoring backlog message", "room", evt.RoomID, "event", evt.ID)
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	if !slices.Contains(c.config.Rooms, evt.RoomID.String()) {
		return Message{}, false
	}
	return Message{
		RoomID:  evt.RoomID.String(),
		Sender:  evt.Sender.String(),
		EventID: evt.ID.String(),
		Body:    content.Body,
	}, true
}

func (c *Client) onMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.Accept(evt)
	if !ok || c.handler == nil {
		return
	}
	c.handler(ctx, msg)
}

func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if errors.Is(err, mautrix.MForbidden) {
		slog.Warn("matrix: join refused, assuming already a member", "room", roomID)
		return nil
	}
	return err
}
