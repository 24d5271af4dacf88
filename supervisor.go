package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/ncp/hal"
	"i4.energy/across/ncp/modem"
)

// Supervisor keeps the modem processing events and, while the operator
// wants it up, brings it back after a failure.
type Supervisor struct {
	NCP     NCP
	Network modem.NetworkConfig
	Clock   hal.Clock
	Logger  *slog.Logger
	// Interval is the period of Run.
	Interval time.Duration
	// RetryInterval is the minimum delay between two bring-up attempts.
	RetryInterval time.Duration

	mu          sync.Mutex
	keepUp      bool
	lastAttempt time.Time
}

// KeepUp sets whether the modem should be powered and connected. It is
// cleared by an explicit power-off, disable or disconnect.
func (s *Supervisor) KeepUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepUp = up
	if up {
		s.lastAttempt = time.Time{}
	}
}

// Run calls Step every Interval until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Step()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step runs one supervision cycle.
func (s *Supervisor) Step() {
	switch s.NCP.State() {
	case modem.NcpStateDisabled:
		if s.due() {
			s.reenable()
		}
		return
	case modem.NcpStateOff:
		if s.due() {
			s.bringUp()
		}
		return
	}

	if err := s.NCP.ProcessEvents(); err != nil {
		s.Logger.Warn("Failed to process modem events", "error", err)
	}
	if s.NCP.State() == modem.NcpStateOn && s.NCP.ConnectionState() == modem.Disconnected && s.due() {
		s.connect()
	}
}

// due reports whether a bring-up attempt may start now and records it.
func (s *Supervisor) due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keepUp {
		return false
	}
	now := s.Clock.Now()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.RetryInterval {
		return false
	}
	s.lastAttempt = now
	return true
}

func (s *Supervisor) bringUp() {
	s.Logger.Info("Powering on modem")
	if err := s.NCP.On(); err != nil {
		s.Logger.Error("Failed to power on modem", "error", err, "kind", modem.KindOf(err).String())
		return
	}
	s.connect()
}

// reenable re-enables a client disabled by a lost link and brings it up
// again. Enable always leaves the modem off.
func (s *Supervisor) reenable() {
	s.Logger.Warn("Re-enabling disabled modem")
	if err := s.NCP.Enable(); err != nil {
		s.Logger.Error("Failed to enable modem", "error", err, "kind", modem.KindOf(err).String())
		return
	}
	s.bringUp()
}

func (s *Supervisor) connect() {
	if err := s.NCP.Connect(s.Network); err != nil {
		s.Logger.Error("Failed to connect", "error", err, "apn", s.Network.APN)
		return
	}
	s.Logger.Info("Connecting", "apn", s.Network.APN)
}
