package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadsCannedData(t *testing.T) {
	m := NewMemory([]byte("hello"))
	buf := make([]byte, 3)

	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "hel", string(buf[:n]))

	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "lo", string(buf[:n]))
}

func TestMemoryReadPastEndReturnsZero(t *testing.T) {
	m := NewMemory([]byte("ab"))
	buf := make([]byte, 4)

	_, err := m.Read(buf)
	require.NoError(t, err)

	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryFeedAppendsForLaterReads(t *testing.T) {
	m := NewMemory([]byte("a"))
	buf := make([]byte, 4)
	n, _ := m.Read(buf)
	require.Equal(t, 1, n)

	m.Feed([]byte("bc"))
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(buf[:n]))
}

func TestMemoryReadBlocksUntilFeedWithTimeout(t *testing.T) {
	m := NewMemory(nil)
	m.SetReadTimeout(200 * time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Feed([]byte("hi"))
	}()

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestMemoryReadTimesOutQuietlyWhenNothingFed(t *testing.T) {
	m := NewMemory(nil)
	m.SetReadTimeout(30 * time.Millisecond)

	start := time.Now()
	n, err := m.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMemoryCloseDuringBlockedReadReturnsPromptly(t *testing.T) {
	m := NewMemory(nil)
	m.SetReadTimeout(2 * time.Second)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Read(make([]byte, 4))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Read did not return promptly after Close")
	}
}

func TestMemoryReadAfterCloseErrors(t *testing.T) {
	m := NewMemory([]byte("x"))
	require.NoError(t, m.Close())

	_, err := m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
}
