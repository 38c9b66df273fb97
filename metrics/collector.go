package metrics

import "time"

// StateSource is the minimal view into a backend needed to refresh gauges
// periodically. It is satisfied by *backend.BoltBackend.
type StateSource interface {
	CountEntries() (int, error)
	CountDatabases() (int, error)
	TipCounts() (map[string]int, error)
}

// Collector periodically refreshes gauge metrics from a backend's current
// state, since gauges (unlike counters) cannot be updated inline from the
// code paths that change them without coupling every caller to metrics.
type Collector struct {
	source StateSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over the given state source.
func NewCollector(source StateSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic collection loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop terminates the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if n, err := c.source.CountEntries(); err == nil {
		EntriesTotal.Set(float64(n))
	}
	if n, err := c.source.CountDatabases(); err == nil {
		DatabasesTotal.Set(float64(n))
	}
	if tips, err := c.source.TipCounts(); err == nil {
		for rootID, count := range tips {
			TipsTotal.WithLabelValues(rootID).Set(float64(count))
		}
	}
}
