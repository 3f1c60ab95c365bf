package transport

import (
	"context"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ringelect/pkg/ring"
)

func newLoopbackPair(t *testing.T) (*UDPTransport, *UDPTransport) {
	t.Helper()
	log := zaptest.NewLogger(t)
	a, err := ListenUDP("127.0.0.1:0", 50*time.Millisecond, log)
	require.NoError(t, err)
	b, err := ListenUDP("127.0.0.1:0", 50*time.Millisecond, log)
	require.NoError(t, err)
	require.NoError(t, a.Connect(b.LocalAddr().String()))
	require.NoError(t, b.Connect(a.LocalAddr().String()))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestUDPTransportRoundTrip(t *testing.T) {
	a, b := newLoopbackPair(t)
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, ring.Candidate(ring.MaxID-1)))
	require.NoError(t, a.Send(ctx, ring.Elected(3)))

	msg, ok, err := b.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ring.Candidate(ring.MaxID-1), msg)

	msg, ok, err = b.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ring.Elected(3), msg)
}

func TestUDPTransportReceiveTimesOutQuietly(t *testing.T) {
	_, b := newLoopbackPair(t)

	start := time.Now()
	_, ok, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUDPTransportDropsMalformedDatagrams(t *testing.T) {
	_, b := newLoopbackPair(t)

	raw, err := net.DialUDP("udp", nil, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer raw.Close()

	for _, payload := range [][]byte{{1, 2}, {0xFF, 0xFF, 0xFF, 0xFF}, {1, 2, 3, 4, 5, 6, 7, 8}} {
		_, err := raw.Write(payload)
		require.NoError(t, err)
	}
	_, err = raw.Write([]byte{0, 0, 0, 5})
	require.NoError(t, err)

	var got []ring.Message
	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		msg, ok, err := b.Receive(context.Background())
		require.NoError(t, err)
		if ok {
			got = append(got, msg)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), b.Dropped())
	assert.Equal(t, ring.Candidate(5), got[0])
}

func TestUDPTransportRefusedWhenSuccessorAbsent(t *testing.T) {
	// Reserve a port, then free it so nothing listens there.
	spare, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	absent := spare.LocalAddr().String()
	require.NoError(t, spare.Close())

	tr, err := NewUDPTransport("127.0.0.1:0", absent, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer tr.Close()

	// The first write succeeds locally; the ICMP reply turns a later one
	// into a refusal. Either way no send may fail with anything else.
	var sendErr error
	deadline := time.Now().Add(2 * time.Second)
	for sendErr == nil && time.Now().Before(deadline) {
		sendErr = tr.Send(context.Background(), ring.Candidate(1))
		time.Sleep(5 * time.Millisecond)
	}
	require.Error(t, sendErr)
	assert.ErrorIs(t, sendErr, ErrRefused)
	assert.True(t, IsTransient(sendErr))
}

func TestClassifySeparatesRefusalFromOtherFailures(t *testing.T) {
	assert.ErrorIs(t, classify(syscall.ECONNREFUSED, "send"), ErrRefused)
	assert.ErrorIs(t, classify(os.ErrDeadlineExceeded, "send"), ErrUnavailable)
	assert.ErrorIs(t, classify(syscall.ENOBUFS, "send"), ErrUnavailable)
	assert.ErrorIs(t, classify(net.ErrClosed, "send"), ErrClosed)

	for _, err := range []error{os.ErrDeadlineExceeded, syscall.ENOBUFS, syscall.EHOSTUNREACH} {
		assert.NotErrorIs(t, classify(err, "send"), ErrRefused, "%v", err)
	}
	other := classify(syscall.EMSGSIZE, "send")
	assert.False(t, IsTransient(other))
}

func TestUDPTransportClosed(t *testing.T) {
	a, _ := newLoopbackPair(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Send(context.Background(), ring.Candidate(1)), ErrClosed)
	_, _, err := a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPTransportSendRejectsInvalidID(t *testing.T) {
	a, _ := newLoopbackPair(t)
	err := a.Send(context.Background(), ring.Candidate(ring.MaxID))
	assert.ErrorIs(t, err, ring.ErrIDOutOfRange)
}
