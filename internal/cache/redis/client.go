package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/pkg/logger"
	"github.com/sortdesk/client/pkg/utils"
)

const cacheType = "backend_config"

// Client caches the backend configuration per origin; it is served when the
// backend cannot be reached.
type Client struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl, prefix: "sortdesk"}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) configKey(origin string) string {
	return fmt.Sprintf("%s:config:%s", c.prefix, utils.PathKey(origin))
}

func (c *Client) SetConfig(ctx context.Context, origin string, cfg *backend.RemoteConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = c.client.Set(ctx, c.configKey(origin), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set config cache: %w", err)
	}

	logger.Debug("Backend config cached", zap.String("origin", origin), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetConfig(ctx context.Context, origin string) (*backend.RemoteConfig, bool, error) {
	data, err := c.client.Get(ctx, c.configKey(origin)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get config cache: %w", err)
	}

	var cfg backend.RemoteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	metrics.CacheHits.WithLabelValues(cacheType).Inc()
	logger.Debug("Backend config cache hit", zap.String("origin", origin))
	return &cfg, true, nil
}
