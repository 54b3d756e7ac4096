// Package feed keeps a live push connection to the backend open for the
// life of a session and forwards every suggestion it receives.
//
// The connection is re-established after a fixed delay whenever it closes
// or the handshake fails. There is no replay on reconnect: suggestions
// created while disconnected are only seen again through a bulk fetch.
package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/internal/suggestion"
	"github.com/sortdesk/client/pkg/logger"
)

const DefaultReconnectDelay = 5 * time.Second

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Conn is the read side of an established push connection.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Sink receives decoded suggestions, normally the session queue.
type Sink interface {
	Upsert(s suggestion.Suggestion) bool
}

type Config struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         Dialer
	// After returns a channel that fires once d has elapsed. Defaults to time.After.
	After         func(d time.Duration) <-chan time.Time
	OnStateChange func(from, to State)
}

type Channel struct {
	url           string
	delay         time.Duration
	dialer        Dialer
	after         func(d time.Duration) <-chan time.Time
	onStateChange func(from, to State)
	sink          Sink
	log           *zap.Logger

	mu    sync.RWMutex
	state State
}

func NewChannel(cfg Config, sink Sink) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebSocketDialer(nil)
	}

	return &Channel{
		url:           cfg.URL,
		delay:         cfg.ReconnectDelay,
		dialer:        cfg.Dialer,
		after:         cfg.After,
		onStateChange: cfg.OnStateChange,
		sink:          sink,
		log:           logger.Named("feed").With(zap.String("url", cfg.URL)),
		state:         StateConnecting,
	}
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run drives the connection until ctx is cancelled. It always returns
// ctx.Err(); transport failures are handled internally.
func (c *Channel) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Info("Live feed handshake failed", zap.Error(err))
		} else {
			c.setState(StateOpen)
			c.log.Info("Live feed connected")
			c.consume(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Info("Live feed disconnected, reconnecting", zap.Duration("delay", c.delay))
		}

		c.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.after(c.delay):
		}
		metrics.FeedReconnects.Inc()
	}
}

// consume reads until the connection fails or ctx is cancelled.
func (c *Channel) consume(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("Live feed read ended", zap.Error(err))
			return
		}
		c.handle(data)
	}
}

func (c *Channel) handle(data []byte) {
	s, err := suggestion.Decode(data)
	if err != nil {
		metrics.FeedMessages.WithLabelValues("discarded").Inc()
		c.log.Debug("Discarding malformed push", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	metrics.FeedMessages.WithLabelValues("accepted").Inc()
	metrics.SuggestionConfidence.Observe(s.Confidence)
	replaced := c.sink.Upsert(s)
	c.log.Debug("Suggestion pushed",
		zap.String("path", s.Path),
		zap.String("category", s.SuggestedCategory),
		zap.Bool("replaced", replaced),
	)
}

func (c *Channel) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	metrics.FeedState.Set(float64(to))
	if c.onStateChange != nil && from != to {
		c.onStateChange(from, to)
	}
}
