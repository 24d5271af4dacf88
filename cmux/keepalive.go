package cmux

import (
	"sync"
	"time"
)

// KeepAliveConfig configures link supervision on the control channel.
type KeepAliveConfig struct {
	// Period is the interval between probes.
	Period time.Duration
	// MaxMissed is the number of consecutive failed probes before the link is
	// considered dead.
	MaxMissed int
}

// DetectionDelay is the longest time a dead link can go unnoticed, not
// counting the response timeout of the last probe.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Period * time.Duration(c.MaxMissed)
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastProbe   time.Time
	LastAnswer  time.Time
	Missed      int
	ProbesTotal uint64
}

// keepAlive periodically runs probe and calls onDead once MaxMissed
// consecutive probes failed. probe blocks until answered or timed out.
type keepAlive struct {
	config  KeepAliveConfig
	probe   func() error
	onDead  func()
	onError func(missed int, err error)

	mu      sync.Mutex
	stats   KeepAliveStats
	running bool
	stopCh  chan struct{}
}

func newKeepAlive(config KeepAliveConfig, probe func() error, onDead func()) *keepAlive {
	if config.Period <= 0 {
		config.Period = DefaultKeepAlivePeriod
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultKeepAliveMaxMissed
	}
	return &keepAlive{
		config: config,
		probe:  probe,
		onDead: onDead,
	}
}

func (ka *keepAlive) Start() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ka.stopCh)
}

// Stop does not wait for an in-flight probe; it may be called from onDead.
func (ka *keepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

func (ka *keepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

func (ka *keepAlive) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if dead := ka.handleTick(stop); dead {
				if ka.onDead != nil {
					ka.onDead()
				}
				return
			}
		}
	}
}

func (ka *keepAlive) handleTick(stop <-chan struct{}) bool {
	ka.mu.Lock()
	ka.stats.LastProbe = time.Now()
	ka.stats.ProbesTotal++
	ka.mu.Unlock()

	err := ka.probe()

	// A probe failing because Stop tore the link down is not a miss.
	select {
	case <-stop:
		return false
	default:
	}

	ka.mu.Lock()
	defer ka.mu.Unlock()
	if err == nil {
		ka.stats.LastAnswer = time.Now()
		ka.stats.Missed = 0
		return false
	}
	ka.stats.Missed++
	if ka.onError != nil {
		ka.onError(ka.stats.Missed, err)
	}
	return ka.stats.Missed >= ka.config.MaxMissed
}
