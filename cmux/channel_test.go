package cmux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStream(t *testing.T) {
	m, fm, _ := startMux(t, testConfig())
	fm.echoData.Store(true)

	ch := NewChannel(m, 1, 16)
	require.NoError(t, ch.Open())
	require.NoError(t, ch.Resume())
	assert.Equal(t, 1, ch.DLCI())

	_, err := ch.Write([]byte("AT\r"))
	require.NoError(t, err)

	require.NoError(t, ch.SetReadTimeout(time.Second))
	buf := make([]byte, 8)
	n, err := ch.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "AT\r", string(buf[:n]))
}

func TestChannelReadTimeout(t *testing.T) {
	m, _, _ := startMux(t, testConfig())
	ch := NewChannel(m, 1, 16)
	require.NoError(t, ch.Open())

	require.NoError(t, ch.SetReadTimeout(20*time.Millisecond))
	start := time.Now()
	n, err := ch.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestChannelOverflowKeepsOldest(t *testing.T) {
	ch := NewChannel(New(nil, Config{}), 1, 4)
	ch.push([]byte("abc"))
	ch.push([]byte("def"))

	require.NoError(t, ch.SetReadTimeout(0))
	buf := make([]byte, 8)
	n, err := ch.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
	assert.Equal(t, uint64(2), ch.Dropped())
}

func TestChannelDisableWakesReader(t *testing.T) {
	ch := NewChannel(New(nil, Config{}), 1, 16)
	require.NoError(t, ch.SetReadTimeout(-1))

	errs := make(chan error, 1)
	go func() {
		_, err := ch.Read(make([]byte, 8))
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ch.SetEnabled(false)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrDisabled)
	case <-time.After(time.Second):
		t.Fatal("reader not woken by disable")
	}

	_, err := ch.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, ch.Enabled())

	ch.SetEnabled(true)
	assert.True(t, ch.Enabled())
}
