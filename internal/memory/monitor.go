package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// Options configures a Monitor. Zero values take the defaults.
type Options struct {
	// Limit is the heap budget in bytes. Zero uses GOMEMLIMIT; when that is
	// unset too the monitor never reports pressure.
	Limit int64
	// HighWaterMark is the usage below which pressure is released.
	HighWaterMark float64
	// CriticalWaterMark is the usage at which pressure starts.
	CriticalWaterMark float64
	Interval          time.Duration
}

const (
	DefaultHighWaterMark     = 0.7
	DefaultCriticalWaterMark = 0.85
	DefaultInterval          = 5 * time.Second
)

// Monitor samples heap usage and reports memory pressure.
type Monitor struct {
	opts      Options
	readAlloc func() uint64

	mu       sync.Mutex
	usage    float64
	pressure bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMonitor creates a Monitor. Call Start to begin sampling.
func NewMonitor(opts *Options) *Monitor {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = DefaultHighWaterMark
	}
	if o.CriticalWaterMark <= 0 {
		o.CriticalWaterMark = DefaultCriticalWaterMark
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Limit == 0 {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
			o.Limit = limit
		}
	}

	return &Monitor{
		opts:      o,
		readAlloc: heapAlloc,
		stop:      make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Enabled reports whether the monitor has a limit to compare against.
func (m *Monitor) Enabled() bool {
	return m.opts.Limit > 0
}

// Start begins sampling. It does nothing when no limit is known.
func (m *Monitor) Start() {
	if !m.Enabled() {
		logging.Info("Memory monitor disabled: no memory limit configured")
		return
	}
	logging.Info("Memory monitor started: limit %s, pause at %.0f%%",
		humanize.IBytes(uint64(m.opts.Limit)), m.opts.CriticalWaterMark*100)

	go func() {
		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) sample() {
	if !m.Enabled() {
		return
	}
	alloc := m.readAlloc()
	usage := float64(alloc) / float64(m.opts.Limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage

	switch {
	case !m.pressure && usage >= m.opts.CriticalWaterMark:
		m.pressure = true
		metrics.MemoryPressure.Set(1)
		logging.Warn("Memory at %.1f%% of limit (%s), holding new work", usage*100, humanize.IBytes(alloc))
		go runtime.GC()
	case m.pressure && usage < m.opts.HighWaterMark:
		m.pressure = false
		metrics.MemoryPressure.Set(0)
		logging.Info("Memory recovered to %.1f%% of limit", usage*100)
	}
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// UnderPressure reports whether new work should be held back.
func (m *Monitor) UnderPressure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressure
}
