package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// Config holds memory monitor settings.
type Config struct {
	// MemoryLimitBytes overrides GOMEMLIMIT; 0 means use GOMEMLIMIT.
	MemoryLimitBytes int64

	// HighWaterMark is the usage ratio below which a paused monitor resumes.
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which batch generation pauses.
	CriticalWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and pauses batch thumbnail generation while it
// is above the critical mark. It implements thumbnail.Throttle.
type Monitor struct {
	config Config
	limit  int64

	mu        sync.RWMutex
	current   uint64
	paused    bool
	resume    chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	readStats func(*runtime.MemStats)
}

// NewMonitor returns a Monitor. Without an explicit limit or GOMEMLIMIT the
// monitor never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %s", FormatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		resume:    make(chan struct{}),
		stop:      make(chan struct{}),
		readStats: runtime.ReadMemStats,
	}
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases any goroutine blocked in WaitIfPaused.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	var stats runtime.MemStats
	m.readStats(&stats)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = stats.Alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(stats.Alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), pausing thumbnail generation", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming thumbnail generation", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// WaitIfPaused blocks while generation is paused. It returns false if the
// monitor was stopped while waiting.
func (m *Monitor) WaitIfPaused() bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return true
	case <-m.stop:
		return false
	}
}

// IsPaused reports whether generation is currently paused.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// GetStats returns the last sampled heap size, the limit and their ratio.
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = math.MaxInt64
	if m.current <= math.MaxInt64 {
		current = int64(m.current)
	}
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
