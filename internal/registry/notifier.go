package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultChannel = "catalog:registry"

// Invalidation tells subscribers that registry entries changed
type Invalidation struct {
	Source    string    `json:"source"` // hostname of the writer
	Reason    string    `json:"reason"` // e.g. "import", "brand-mining"
	Timestamp time.Time `json:"timestamp"`
}

// RedisNotifier fans registry invalidations out to every process over Redis pub/sub
type RedisNotifier struct {
	rdb     *goredis.Client
	channel string
	logger  zerolog.Logger
	source  string
}

// NewRedisNotifier connects to addr and verifies the connection
func NewRedisNotifier(ctx context.Context, addr, channel string, logger zerolog.Logger) (*RedisNotifier, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = defaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	host, _ := os.Hostname()
	return &RedisNotifier{
		rdb:     rdb,
		channel: channel,
		logger:  logger.With().Str("component", "registry_notifier").Logger(),
		source:  host,
	}, nil
}

// Publish announces a registry change
func (n *RedisNotifier) Publish(ctx context.Context, reason string) error {
	raw, err := json.Marshal(Invalidation{Source: n.source, Reason: reason, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe refreshes cache on every invalidation until ctx is done
func (n *RedisNotifier) Subscribe(ctx context.Context, cache *Cache) error {
	sub := n.rdb.Subscribe(ctx, n.channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var inv Invalidation
				if err := json.Unmarshal([]byte(m.Payload), &inv); err != nil {
					n.logger.Warn().Err(err).Msg("Bad registry invalidation payload")
					continue
				}
				n.logger.Debug().Str("source", inv.Source).Str("reason", inv.Reason).Msg("Registry invalidated")
				if _, err := cache.Reload(ctx); err != nil {
					n.logger.Error().Err(err).Msg("Failed to refresh registry after invalidation")
				}
			}
		}
	}()

	return nil
}

// Close closes the redis client
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
