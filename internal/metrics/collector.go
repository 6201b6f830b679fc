package metrics

import (
	"time"

	"thumbcache/internal/logging"
)

// TierStats is the on-disk footprint of one cache tier.
type TierStats struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`
}

// Stats holds the values the collector publishes as gauges.
type Stats struct {
	Tiers  map[string]TierStats
	Images int
}

// StatsProvider supplies cache statistics. Walking the cache directory is
// too slow for every scrape, so the collector polls it on an interval.
type StatsProvider interface {
	CollectStats() (Stats, error)
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() (Stats, error)

// CollectStats implements StatsProvider.
func (f StatsProviderFunc) CollectStats() (Stats, error) {
	return f()
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats, err := c.statsProvider.CollectStats()
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	for tier, ts := range stats.Tiers {
		ThumbnailCacheFiles.WithLabelValues(tier).Set(float64(ts.Files))
		ThumbnailCacheBytes.WithLabelValues(tier).Set(float64(ts.Bytes))
	}
	IndexedImagesTotal.Set(float64(stats.Images))

	logging.Debug("Metrics collected: tiers=%d, images=%d", len(stats.Tiers), stats.Images)
}
