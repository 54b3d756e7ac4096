// Package session assembles one review session: the queue and its
// projection, the live feed, the decision dispatcher and the training
// collector, all bound to a single backend origin.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/dispatcher"
	"github.com/sortdesk/client/internal/feed"
	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/internal/projector"
	"github.com/sortdesk/client/internal/queue"
	"github.com/sortdesk/client/internal/suggestion"
	"github.com/sortdesk/client/internal/training"
	"github.com/sortdesk/client/pkg/logger"
)

type Backend interface {
	dispatcher.Applier
	training.Backend
	FetchSuggestions(ctx context.Context) ([]suggestion.Suggestion, error)
	FetchConfig(ctx context.Context) (*backend.RemoteConfig, error)
	BaseURL() string
}

type ConfigCache interface {
	GetConfig(ctx context.Context, origin string) (*backend.RemoteConfig, bool, error)
	SetConfig(ctx context.Context, origin string, cfg *backend.RemoteConfig) error
}

type Options struct {
	FeedPath       string
	ReconnectDelay time.Duration
	Dialer         feed.Dialer
	After          func(d time.Duration) <-chan time.Time
	Cache          ConfigCache
	Journal        dispatcher.Journal
}

type Session struct {
	Queue      *queue.Queue
	Projector  *projector.Projector
	Dispatcher *dispatcher.Dispatcher
	Training   *training.Collector
	Feed       *feed.Channel
	Notices    *NoticeBoard

	backend Backend
	cache   ConfigCache
	log     *zap.Logger
	wg      sync.WaitGroup

	mu           sync.RWMutex
	remoteConfig *backend.RemoteConfig
	configStale  bool
}

func New(b Backend, opts Options) (*Session, error) {
	feedURL, err := feed.URLFromOrigin(b.BaseURL(), opts.FeedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive feed url: %w", err)
	}

	q := queue.New()
	q.Subscribe(func(ev queue.Event) {
		metrics.QueueSize.Set(float64(ev.Len))
	})

	notices := NewNoticeBoard()

	s := &Session{
		Queue:      q,
		Projector:  projector.New(q),
		Dispatcher: dispatcher.New(b, q, notices, opts.Journal),
		Training:   training.NewCollector(b),
		Notices:    notices,
		backend:    b,
		cache:      opts.Cache,
		log:        logger.Named("session"),
	}

	s.Feed = feed.NewChannel(feed.Config{
		URL:            feedURL,
		ReconnectDelay: opts.ReconnectDelay,
		Dialer:         opts.Dialer,
		After:          opts.After,
		OnStateChange: func(from, to feed.State) {
			s.log.Debug("Feed state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}, q)

	return s, nil
}

// Start opens the live feed, then performs the one-time loads. The feed is
// started first so pushes that race the bulk fetch are merged, not lost.
// Load failures are logged; the session stays usable.
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Feed.Run(ctx)
	}()

	if err := s.LoadSuggestions(ctx); err != nil {
		s.log.Error("Failed to load suggestions", zap.Error(err))
	}
	if err := s.LoadConfig(ctx); err != nil {
		s.log.Error("Failed to load config", zap.Error(err))
	}
	if err := s.Training.Load(ctx); err != nil {
		s.log.Error("Failed to load training data", zap.Error(err))
	}
}

// Wait blocks until the feed has stopped after the Start context ended.
func (s *Session) Wait() {
	s.wg.Wait()
}

// LoadSuggestions performs the bulk fetch and merges it into the queue.
func (s *Session) LoadSuggestions(ctx context.Context) error {
	initial, err := s.backend.FetchSuggestions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch suggestions: %w", err)
	}

	added := s.Queue.Seed(initial)
	s.log.Info("Suggestions loaded", zap.Int("fetched", len(initial)), zap.Int("added", added))
	return nil
}

// LoadConfig fetches the backend configuration, falling back to the cache
// when the backend cannot be reached.
func (s *Session) LoadConfig(ctx context.Context) error {
	origin := s.backend.BaseURL()

	cfg, err := s.backend.FetchConfig(ctx)
	if err == nil {
		s.setConfig(cfg, false)
		if s.cache != nil {
			if cerr := s.cache.SetConfig(ctx, origin, cfg); cerr != nil {
				s.log.Warn("Failed to cache config", zap.Error(cerr))
			}
		}
		return nil
	}

	if s.cache != nil {
		cached, found, cerr := s.cache.GetConfig(ctx, origin)
		if cerr != nil {
			s.log.Warn("Failed to read cached config", zap.Error(cerr))
		}
		if found {
			s.log.Warn("Using cached config", zap.Error(err))
			s.setConfig(cached, true)
			return nil
		}
	}

	return fmt.Errorf("failed to fetch config: %w", err)
}

func (s *Session) setConfig(cfg *backend.RemoteConfig, stale bool) {
	s.mu.Lock()
	s.remoteConfig = cfg
	s.configStale = stale
	s.mu.Unlock()
}

// Config returns the last loaded backend configuration, nil before the
// first successful load. stale is set when it came from the cache.
func (s *Session) Config() (cfg *backend.RemoteConfig, stale bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.remoteConfig == nil {
		return nil, false
	}
	c := *s.remoteConfig
	return &c, s.configStale
}

func (s *Session) Ready() bool {
	return s.Queue.Seeded()
}
