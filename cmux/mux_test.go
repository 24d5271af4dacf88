package cmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxFrameSize:           64,
		KeepAlivePeriod:        -1,
		MaxRetransmissions:     2,
		AckTimeout:             50 * time.Millisecond,
		ControlResponseTimeout: 50 * time.Millisecond,
		ReadPollInterval:       10 * time.Millisecond,
	}
}

func startMux(t *testing.T, cfg Config) (*Mux, *fakeModem, *stateRecorder) {
	t.Helper()
	fm, transport := newFakeModem(t)
	m := New(transport, cfg)
	rec := &stateRecorder{}
	m.SetChannelStateHandler(rec.handler)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
	return m, fm, rec
}

func TestStartOpensControlChannel(t *testing.T) {
	m, fm, _ := startMux(t, testConfig())

	assert.True(t, m.Running())
	assert.Equal(t, ChannelOpen, m.ChannelState(0))
	assert.Equal(t, 1, fm.count(0, FrameSABM))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)
}

func TestStartTimeoutCleansUp(t *testing.T) {
	fm, transport := newFakeModem(t)
	fm.silent.Store(true)
	m := New(transport, testConfig())

	err := m.Start(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, m.Running())
	assert.Equal(t, ChannelClosed, m.ChannelState(0))
	// Initial SABM plus two retransmissions, then a CLD to leave mux mode.
	assert.Eventually(t, func() bool {
		return fm.count(0, FrameSABM) == 3 && fm.sawControl(msgCLD)
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, fm.count(0, FrameDISC))

	_, err = m.WriteChannel(1, []byte("AT\r"))
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStartRejected(t *testing.T) {
	fm, transport := newFakeModem(t)
	fm.rejectSABM.Store(true)
	m := New(transport, testConfig())

	require.ErrorIs(t, m.Start(context.Background()), ErrRejected)
	assert.False(t, m.Running())
	assert.Eventually(t, func() bool { return fm.sawControl(msgCLD) }, time.Second, 10*time.Millisecond)
}

func TestStartHonoursContext(t *testing.T) {
	fm, transport := newFakeModem(t)
	fm.silent.Store(true)
	m := New(transport, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Start(ctx), context.Canceled)
	assert.False(t, m.Running())
}

func TestOpenChannelAndExchangeData(t *testing.T) {
	m, fm, rec := startMux(t, testConfig())
	fm.echoData.Store(true)

	received := make(chan []byte, 4)
	require.NoError(t, m.OpenChannel(2, func(data []byte) { received <- data }))
	assert.Equal(t, ChannelOpen, m.ChannelState(2))
	assert.Contains(t, rec.snapshot(), transition{dlci: 2, old: ChannelClosed, new: ChannelOpen})

	n, err := m.WriteChannel(2, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	select {
	case data := <-received:
		assert.Equal(t, []byte("ping"), data)
	case <-time.After(time.Second):
		t.Fatal("no data received on channel 2")
	}
}

func TestWriteChannelSplitsFrames(t *testing.T) {
	m, fm, _ := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(2, nil))

	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := m.WriteChannel(2, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	assert.Eventually(t, func() bool {
		return fm.count(2, FrameUIH) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, payload, fm.dataOn(2))
}

func TestWriteChannelClosed(t *testing.T) {
	m, _, _ := startMux(t, testConfig())

	_, err := m.WriteChannel(2, []byte("x"))
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, m.OpenChannel(0, nil), ErrInvalidChannel)
}

func TestRemoteFlowControl(t *testing.T) {
	m, fm, _ := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(2, nil))

	fm.sendControl(controlMsg{typ: msgMSC, command: true, value: mscValue(2, signalsReady|signalFC)})
	assert.Eventually(t, func() bool {
		_, err := m.WriteChannel(2, []byte("x"))
		return err == ErrFlowControl
	}, time.Second, 10*time.Millisecond)

	fm.sendControl(controlMsg{typ: msgMSC, command: true, value: mscValue(2, signalsReady)})
	assert.Eventually(t, func() bool {
		_, err := m.WriteChannel(2, []byte("x"))
		return err == nil
	}, time.Second, 10*time.Millisecond)

	fm.sendControl(controlMsg{typ: msgFCoff, command: true})
	assert.Eventually(t, func() bool {
		_, err := m.WriteChannel(2, []byte("x"))
		return err == ErrFlowControl
	}, time.Second, 10*time.Millisecond)
}

func TestResumeChannel(t *testing.T) {
	m, fm, _ := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(1, nil))

	require.NoError(t, m.ResumeChannel(1))
	assert.True(t, fm.sawControl(msgMSC))
	assert.ErrorIs(t, m.ResumeChannel(2), ErrChannelClosed)
}

func TestRemoteDisconnectNotifies(t *testing.T) {
	m, fm, rec := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(2, nil))

	fm.send(Frame{DLCI: 2, Type: FrameDISC, CR: true, PF: true})
	assert.Eventually(t, func() bool { return rec.closed(2) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, ChannelClosed, m.ChannelState(2))
	assert.True(t, m.Running())
	assert.False(t, rec.closed(0))
}

func TestRemoteCloseDownClosesEverything(t *testing.T) {
	m, fm, rec := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(1, nil))

	fm.sendControl(controlMsg{typ: msgCLD, command: true})
	assert.Eventually(t, func() bool { return rec.closed(0) }, time.Second, 10*time.Millisecond)
	assert.False(t, m.Running())

	events := rec.snapshot()
	var order []int
	for _, e := range events {
		if e.new == ChannelClosed {
			order = append(order, e.dlci)
		}
	}
	assert.Equal(t, []int{1, 0}, order)
}

func TestStopDoesNotNotify(t *testing.T) {
	m, fm, rec := startMux(t, testConfig())
	require.NoError(t, m.OpenChannel(1, nil))

	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
	assert.False(t, rec.closed(1))
	assert.False(t, rec.closed(0))
	assert.True(t, fm.sawControl(msgCLD))
	require.NoError(t, m.Stop())
}

func TestRestartAfterStop(t *testing.T) {
	m, _, _ := startMux(t, testConfig())
	require.NoError(t, m.Stop())
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
}

func TestKeepAliveDetectsDeadLink(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlivePeriod = 30 * time.Millisecond
	cfg.KeepAliveMaxMissed = 2
	cfg.ControlResponseTimeout = 10 * time.Millisecond

	m, fm, rec := startMux(t, cfg)
	fm.ignoreTest.Store(true)

	assert.Eventually(t, func() bool { return rec.closed(0) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, m.Running())
}

func TestKeepAliveAnswered(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlivePeriod = 20 * time.Millisecond
	cfg.KeepAliveMaxMissed = 2

	m, fm, rec := startMux(t, cfg)

	assert.Eventually(t, func() bool {
		return m.KeepAliveStats().ProbesTotal >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Running())
	assert.False(t, rec.closed(0))
	assert.Zero(t, m.KeepAliveStats().Missed)
	assert.True(t, fm.sawControl(msgTest))
}

func TestKeepAliveWithModemStatus(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlivePeriod = 20 * time.Millisecond
	cfg.KeepAliveMaxMissed = 2
	cfg.UseMSCAsKeepAlive = true

	m, fm, rec := startMux(t, cfg)
	fm.ignoreTest.Store(true)
	require.NoError(t, m.OpenChannel(1, nil))

	assert.Eventually(t, func() bool {
		return m.KeepAliveStats().ProbesTotal >= 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Running())
	assert.False(t, rec.closed(0))
	assert.False(t, fm.sawControl(msgTest))
}
