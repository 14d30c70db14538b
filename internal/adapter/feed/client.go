// Package feed maintains the duplex WebSocket connection to the product
// announcement feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/storm-data-layers/internal/config"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/observability"
)

// Outbound commands. They are sent as plain strings.
const (
	CmdGetCatalog         = "getCatalog"
	CmdRequestTestMessage = "requestTestMessage"
)

const (
	initialBackoff = 200 * time.Millisecond
	writeWait      = 10 * time.Second
)

// Handler receives each decoded announcement in frame order.
type Handler func(ctx context.Context, a domain.ProductAnnouncement) error

// Client reads announcement frames from the feed and dispatches them to a
// single handler. It reconnects with exponential backoff and queues outbound
// commands while disconnected.
type Client struct {
	url        string
	dialer     *websocket.Dialer
	handler    Handler
	logger     *slog.Logger
	metrics    *observability.Metrics
	maxBackoff time.Duration
	queueSize  int
	fixture    []byte

	// mu guards conn and queue and serializes writes to conn.
	mu    sync.Mutex
	conn  *websocket.Conn
	queue []string
}

// NewClient creates a feed client from the service configuration. When test
// messages are enabled the fixture file is read up front.
func NewClient(cfg *config.Config, handler Handler, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	c := &Client{
		url:        cfg.FeedURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handler:    handler,
		logger:     logger,
		metrics:    metrics,
		maxBackoff: cfg.FeedMaxBackoff,
		queueSize:  cfg.FeedSendQueue,
	}
	if cfg.FeedTestMessages {
		data, err := os.ReadFile(cfg.FeedTestMessagesFile)
		if err != nil {
			return nil, fmt.Errorf("read test messages: %w", err)
		}
		c.fixture = data
	}
	return c, nil
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes a command to the feed. While disconnected the command is queued
// and flushed after the next connect; when the queue is full the oldest
// command is dropped.
func (c *Client) Send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.enqueue(cmd)
		return nil
	}
	if err := c.write(c.conn, cmd); err != nil {
		// The read loop sees the broken connection and reconnects.
		c.enqueue(cmd)
		return err
	}
	return nil
}

func (c *Client) enqueue(cmd string) {
	if len(c.queue) >= c.queueSize {
		c.logger.Warn("feed send queue full, dropping oldest command", "dropped", c.queue[0])
		c.metrics.FeedDroppedSends.Inc()
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, cmd)
}

func (c *Client) write(conn *websocket.Conn, cmd string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		return &domain.TransportError{Op: "write", Err: err}
	}
	return nil
}

// RequestTestMessage asks the feed for a test announcement batch. With test
// messages enabled and no open socket, the fixture batch is dispatched
// locally instead.
func (c *Client) RequestTestMessage(ctx context.Context) error {
	if c.fixture != nil && !c.Connected() {
		c.logger.Info("feed not connected, dispatching test message fixture")
		return c.dispatch(ctx, c.fixture)
	}
	return c.Send(CmdRequestTestMessage)
}

// Run connects to the feed and reads frames until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("feed client started", "url", c.url)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("feed dial failed", "error", &domain.TransportError{Op: "dial", Err: err}, "retry_in", backoff)
			c.metrics.FeedReconnects.Inc()
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, c.maxBackoff)
			continue
		}
		backoff = initialBackoff

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			c.logger.Info("feed client stopping", "reason", ctx.Err())
			return nil
		}
		c.logger.Warn("feed connection lost", "error", err, "retry_in", backoff)
		c.metrics.FeedReconnects.Inc()
		if !retry.SleepWithContext(ctx, backoff) {
			return nil
		}
		backoff = retry.NextBackoff(backoff, c.maxBackoff)
	}
}

// serve runs one connection: announce, flush the queue, then read until the
// connection fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	if err := c.attach(conn); err != nil {
		return err
	}
	defer c.detach()
	c.logger.Info("feed connected", "url", c.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return &domain.TransportError{Op: "read", Err: err}
		}
		if err := c.dispatch(ctx, frame); err != nil {
			return err
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(conn, CmdGetCatalog); err != nil {
		return err
	}
	for len(c.queue) > 0 {
		if err := c.write(conn, c.queue[0]); err != nil {
			return err
		}
		c.queue = c.queue[1:]
	}
	c.conn = conn
	c.metrics.FeedConnected.Set(1)
	return nil
}

func (c *Client) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.metrics.FeedConnected.Set(0)
}

// dispatch decodes a frame and hands each announcement to the handler in
// order. Malformed elements are logged and skipped.
func (c *Client) dispatch(ctx context.Context, frame []byte) error {
	c.metrics.FeedFrames.Inc()
	anns, errs := domain.DecodeAnnouncements(frame)
	for _, err := range errs {
		c.logger.Warn("malformed announcement skipped", "error", err)
		c.metrics.FeedDecodeErrors.Inc()
	}
	for _, a := range anns {
		if err := c.handler(ctx, a); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Warn("announcement handler failed", "error", err, "type", a.Type, "uuid", a.UUID)
			continue
		}
		c.metrics.FeedAnnouncements.Inc()
	}
	return nil
}
