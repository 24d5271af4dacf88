package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"i4.energy/across/ncp/hal"
	"i4.energy/across/ncp/modem"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSupervisor(ncp NCP) *Supervisor {
	return &Supervisor{
		NCP:           ncp,
		Network:       modem.NetworkConfig{APN: "default.apn"},
		Clock:         hal.NewFakeClock(testEpoch),
		Logger:        slog.New(slog.DiscardHandler),
		Interval:      time.Millisecond,
		RetryInterval: time.Minute,
	}
}

func TestSupervisorBringsUp(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	s.KeepUp(true)

	gomock.InOrder(
		ncp.EXPECT().State().Return(modem.NcpStateOff),
		ncp.EXPECT().On().Return(nil),
		ncp.EXPECT().Connect(modem.NetworkConfig{APN: "default.apn"}).Return(nil),
	)
	s.Step()
}

func TestSupervisorIdleWithoutKeepUp(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)

	ncp.EXPECT().State().Return(modem.NcpStateOff).Times(3)
	for range 3 {
		s.Step()
	}
}

func TestSupervisorRetryInterval(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	clock := s.Clock.(*hal.FakeClock)
	s.KeepUp(true)

	ncp.EXPECT().State().Return(modem.NcpStateOff).AnyTimes()
	ncp.EXPECT().On().Return(modem.ErrPowerGood).Times(2)

	s.Step()
	clock.Advance(30 * time.Second)
	s.Step()
	clock.Advance(30 * time.Second)
	s.Step()
}

func TestSupervisorKeepUpResetsRetry(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	s.KeepUp(true)

	ncp.EXPECT().State().Return(modem.NcpStateOff).AnyTimes()
	ncp.EXPECT().On().Return(modem.ErrPowerGood).Times(2)

	s.Step()
	s.KeepUp(true)
	s.Step()
}

func TestSupervisorProcessesEvents(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	s.KeepUp(true)

	ncp.EXPECT().State().Return(modem.NcpStateOn).Times(2)
	ncp.EXPECT().ProcessEvents().Return(nil)
	ncp.EXPECT().ConnectionState().Return(modem.Connecting)
	s.Step()
}

func TestSupervisorReconnects(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	s.KeepUp(true)

	ncp.EXPECT().State().Return(modem.NcpStateOn).AnyTimes()
	ncp.EXPECT().ProcessEvents().Return(modem.ErrNoResponse)
	ncp.EXPECT().ConnectionState().Return(modem.Disconnected)
	ncp.EXPECT().Connect(gomock.Any()).Return(nil)
	s.Step()
}

func TestSupervisorStaysDisabledWithoutKeepUp(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)

	ncp.EXPECT().State().Return(modem.NcpStateDisabled).Times(2)
	s.Step()
	s.Step()
}

func TestSupervisorReenables(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	s.KeepUp(true)

	gomock.InOrder(
		ncp.EXPECT().State().Return(modem.NcpStateDisabled),
		ncp.EXPECT().Enable().Return(nil),
		ncp.EXPECT().On().Return(nil),
		ncp.EXPECT().Connect(modem.NetworkConfig{APN: "default.apn"}).Return(nil),
	)
	s.Step()
}

func TestSupervisorReenableFailure(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)
	clock := s.Clock.(*hal.FakeClock)
	s.KeepUp(true)

	ncp.EXPECT().State().Return(modem.NcpStateDisabled).Times(3)
	ncp.EXPECT().Enable().Return(modem.ErrAlreadyClosed).Times(2)

	s.Step()
	s.Step()
	clock.Advance(time.Minute)
	s.Step()
}

func TestSupervisorRun(t *testing.T) {
	ncp := NewMockNCP(gomock.NewController(t))
	s := newTestSupervisor(ncp)

	steps := make(chan struct{}, 16)
	ncp.EXPECT().State().DoAndReturn(func() modem.NcpState {
		select {
		case steps <- struct{}{}:
		default:
		}
		return modem.NcpStateOff
	}).MinTimes(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-steps
	<-steps
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.keepUp)
}
