package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// producerHeader identifies this producer to the pipeline gateway. The value
// carries a random suffix so concurrent watchers for different instruments
// never collide on producer identity.
const producerHeader = "X-Producer-Name"

// reconnectBackoff is the pause before the single reconnect attempt after a
// failed write.
const reconnectBackoff = 1 * time.Second

// WebsocketProducer is a Notifier that writes each run path as one text
// message over a WebSocket connection to the pipeline gateway.
//
// Failure policy: a failed write triggers exactly one reconnect-and-retry;
// a second failure propagates to the caller, which treats it as fatal. The
// producer never buffers or drops messages silently.
type WebsocketProducer struct {
	url            string
	producerName   string
	connectTimeout time.Duration
	logger         *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// DialProducer connects to the pipeline gateway and returns a ready producer.
// producerName gets a random suffix appended, mirroring how other producers
// at the facility register themselves.
func DialProducer(ctx context.Context, url, producerName string, connectTimeout time.Duration, logger *slog.Logger) (*WebsocketProducer, error) {
	p := &WebsocketProducer{
		url:            url,
		producerName:   fmt.Sprintf("%s-%s", producerName, uuid.NewString()[:8]),
		connectTimeout: connectTimeout,
		logger:         logger,
	}

	// The initial dial gets the same one-retry budget as reconnects.
	backoff := retry.WithMaxRetries(1, retry.NewConstant(reconnectBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.connect(ctx); err != nil {
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// connect dials the gateway within the configured connect timeout. Caller
// must hold mu or be the only goroutine with access (DialProducer).
func (p *WebsocketProducer) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set(producerHeader, p.producerName)

	conn, resp, err := websocket.Dial(dialCtx, p.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("notify: connecting to %s: %w", p.url, err)
	}

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	p.conn = conn
	p.logger.Info("connected to pipeline gateway",
		slog.String("url", p.url),
		slog.String("producer", p.producerName),
	)

	return nil
}

// Notify sends the run path as a single text message. On a write failure it
// reconnects and retries exactly once before giving up.
func (p *WebsocketProducer) Notify(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	backoff := retry.WithMaxRetries(1, retry.NewConstant(reconnectBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if p.conn == nil {
			if err := p.connect(ctx); err != nil {
				return retry.RetryableError(err)
			}
		}

		if err := p.conn.Write(ctx, websocket.MessageText, []byte(path)); err != nil {
			p.logger.Warn("notification write failed, reconnecting",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			p.dropConn()

			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("notify: emitting %s: %w", path, err)
	}

	p.logger.Info("notification emitted", slog.String("path", path))

	return nil
}

// dropConn discards the current connection after a failure so the next
// attempt dials fresh. Caller must hold mu.
func (p *WebsocketProducer) dropConn() {
	if p.conn != nil {
		p.conn.Close(websocket.StatusInternalError, "write failed")
		p.conn = nil
	}
}

// Close shuts the connection down cleanly.
func (p *WebsocketProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}

	err := p.conn.Close(websocket.StatusNormalClosure, "")
	p.conn = nil

	return err
}
