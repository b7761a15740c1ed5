package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RefresherConfig holds configuration for the periodic registry reload
type RefresherConfig struct {
	Interval time.Duration // How often to reload the registry
	Enabled  bool          // Whether the periodic reload runs
}

// DefaultRefresherConfig returns the default refresher configuration
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval: 1 * time.Hour,
		Enabled:  true,
	}
}

// Refresher reloads the registry cache on a fixed interval
type Refresher struct {
	cache  *Cache
	config RefresherConfig
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a new refresher for cache
func NewRefresher(cache *Cache, config RefresherConfig, logger zerolog.Logger) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Interval <= 0 {
		config.Interval = DefaultRefresherConfig().Interval
	}

	return &Refresher{
		cache:  cache,
		config: config,
		logger: logger.With().Str("component", "registry_refresher").Logger(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins the background reload loop. The registry is loaded once immediately.
func (r *Refresher) Start() {
	if !r.config.Enabled {
		r.logger.Info().Msg("Registry refresher is disabled, not starting")
		close(r.done)
		return
	}

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Msg("Starting registry refresher")

	go r.run()
}

// Stop gracefully stops the reload loop
func (r *Refresher) Stop() {
	r.logger.Info().Msg("Stopping registry refresher...")
	r.cancel()

	select {
	case <-r.done:
		r.logger.Info().Msg("Registry refresher stopped")
	case <-time.After(5 * time.Second):
		r.logger.Warn().Msg("Registry refresher did not stop gracefully")
	}
}

func (r *Refresher) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.refresh()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	if _, err := r.cache.Refresh(r.ctx); err != nil {
		r.logger.Error().Err(err).Msg("Failed to refresh registry")
	}
}
