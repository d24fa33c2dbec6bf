// internal/crossframe/websocket.go
package crossframe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/keynav/internal/config"
)

// ErrSendBufferFull is returned when the outbound queue of a websocket channel
// cannot take another message.
var ErrSendBufferFull = errors.New("crossframe: send buffer full")

// Frames are cooperating parts of one application, so any origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketChannel carries envelopes to a frame living in another process.
// Each envelope travels as one text message.
type WebSocketChannel struct {
	conn   *websocket.Conn
	cfg    config.WebSocketConfig
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	group     *errgroup.Group

	mu      sync.Mutex
	recv    func([]byte)
	backlog [][]byte
}

// NewWebSocketChannel starts the read and write pumps for conn.
func NewWebSocketChannel(conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketChannel {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	g, ctx := errgroup.WithContext(context.Background())
	c := &WebSocketChannel{
		conn:   conn,
		cfg:    cfg,
		logger: logger.Named("websocket").With(zap.String("remote", conn.RemoteAddr().String())),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		group:  g,
	}
	g.Go(c.readPump)
	g.Go(c.writePump)
	return c
}

func (c *WebSocketChannel) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SetReceiver installs fn and hands it whatever arrived while no receiver was set.
func (c *WebSocketChannel) SetReceiver(fn func([]byte)) {
	c.mu.Lock()
	c.recv = fn
	var backlog [][]byte
	if fn != nil {
		backlog, c.backlog = c.backlog, nil
	}
	c.mu.Unlock()
	for _, msg := range backlog {
		fn(msg)
	}
}

// Done is closed once the connection stopped, for whatever reason.
func (c *WebSocketChannel) Done() <-chan struct{} { return c.ctx.Done() }

// Close sends a close frame, stops both pumps and waits for them.
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	err := c.group.Wait()
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

// errStopped ends the pumps once Close was called, cancelling the group context.
var errStopped = errors.New("websocket channel stopped")

func (c *WebSocketChannel) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump delivers inbound messages to the receiver until the connection fails.
func (c *WebSocketChannel) readPump() error {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.stopping() {
				return errStopped
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Websocket read error.", zap.Error(err))
				return fmt.Errorf("websocket read: %w", err)
			}
			c.logger.Debug("Websocket closed by peer.", zap.Error(err))
			return errStopped
		}

		c.mu.Lock()
		recv := c.recv
		if recv == nil {
			c.backlog = append(c.backlog, message)
		}
		c.mu.Unlock()
		if recv != nil {
			recv(message)
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *WebSocketChannel) writePump() error {
	pingPeriod := (c.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return errStopped
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return fmt.Errorf("websocket write: %w", err)
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("websocket ping: %w", err)
			}
		}
	}
}

// Dial connects to a frame listening at url, retrying with exponential
// backoff for up to cfg.DialMaxElapsed.
func Dial(ctx context.Context, url string, cfg config.WebSocketConfig, logger *zap.Logger) (*WebSocketChannel, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.DialMaxElapsed
	b.MaxInterval = 5 * time.Second

	var conn *websocket.Conn
	operation := func() error {
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("dial %s: %s: %w", url, resp.Status, err))
			}
			logger.Debug("Dial failed, retrying.", zap.String("url", url), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to frame at %s: %w", url, err)
	}
	logger.Info("Connected to frame.", zap.String("url", url))
	return NewWebSocketChannel(conn, cfg, logger), nil
}

// Handler upgrades HTTP requests to websocket channels and hands each one to accept.
func Handler(cfg config.WebSocketConfig, logger *zap.Logger, accept func(*WebSocketChannel)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed.", zap.Error(err))
			return
		}
		logger.Info("Frame connected.", zap.String("remote", r.RemoteAddr))
		accept(NewWebSocketChannel(conn, cfg, logger))
	})
}
