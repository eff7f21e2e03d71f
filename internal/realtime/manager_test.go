package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func connectOpen(t *testing.T, client *Client, dialer *fakeDialer) *fakeConn {
	t.Helper()
	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, client.IsConnected, waitFor, tick)
	return dialer.last()
}

func TestReconnectPolicyDelay(t *testing.T) {
	p := DefaultReconnectPolicy()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, delay := range want {
		assert.Equal(t, delay, p.Delay(attempt), "attempt %d", attempt)
	}

	assert.Equal(t, 30*time.Second, p.Delay(200), "large attempts must not overflow")
	assert.Equal(t, 5*time.Second, ReconnectPolicy{BaseDelay: 10 * time.Second, MaxDelay: 5 * time.Second}.Delay(0))
}

func TestConnectIsIdempotent(t *testing.T) {
	client, dialer, _ := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	rec := &recorder{}
	client.On(EventConnected, rec.handler(EventConnected))

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, func() bool { return rec.count(EventConnected) == 1 }, waitFor, tick)

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Connect(context.Background()))

	assert.Equal(t, 1, dialer.dials())
	assert.Equal(t, 1, rec.count(EventConnected))
	assert.Equal(t, StateOpen, client.State())
	assert.Equal(t, "ws://auction.test/ws?token=abc", dialer.targets[0])
}

func TestConnectWithoutCredential(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		client, dialer, sched := newTestClient(staticTokens(""), DefaultReconnectPolicy())

		err := client.Connect(context.Background())
		require.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, StateIdle, client.State())
		assert.Zero(t, dialer.dials())
		assert.Zero(t, sched.scheduled())
	})

	t.Run("provider error", func(t *testing.T) {
		failing := TokenProviderFunc(func(context.Context) (string, error) {
			return "", errors.New("session expired")
		})
		client, dialer, _ := newTestClient(failing, DefaultReconnectPolicy())

		err := client.Connect(context.Background())
		require.ErrorIs(t, err, ErrUnauthenticated)
		assert.Contains(t, err.Error(), "session expired")
		assert.Equal(t, StateIdle, client.State())
		assert.Zero(t, dialer.dials())
	})
}

func TestConnectMalformedURL(t *testing.T) {
	for _, base := range []string{"://no-scheme", "ftp://auction.test/ws", "ws:///ws"} {
		t.Run(base, func(t *testing.T) {
			dialer := &fakeDialer{}
			sched := &fakeScheduler{}
			client := NewClient(base, staticTokens("abc"),
				WithDialer(dialer),
				withAfterFunc(sched.AfterFunc),
			)

			err := client.Connect(context.Background())
			require.ErrorIs(t, err, ErrTransport)
			assert.Equal(t, StateIdle, client.State())
			assert.Zero(t, dialer.dials())
			assert.Zero(t, sched.scheduled())
		})
	}
}

func TestBuildEndpoint(t *testing.T) {
	got, err := buildEndpoint("https://auction.test/ws?lang=vi", "a b&c")
	require.NoError(t, err)
	assert.Equal(t, "wss://auction.test/ws?lang=vi&token=a+b%26c", got)

	got, err = buildEndpoint("http://localhost:8080/ws", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws?token=abc", got)
}

func TestBackoffGrowth(t *testing.T) {
	policy := DefaultReconnectPolicy()
	policy.MaxAttempts = 6
	client, dialer, sched := newTestClient(staticTokens("abc"), policy)

	conn := connectOpen(t, client, dialer)
	dialer.failFor(100)
	conn.drop()

	for i := 1; i <= 6; i++ {
		require.Eventually(t, func() bool { return sched.scheduled() == i }, waitFor, tick)
		require.True(t, sched.fireLast())
	}

	require.Eventually(t, func() bool { return dialer.dials() == 7 }, waitFor, tick)
	require.Eventually(t, func() bool { return client.State() == StateClosed }, waitFor, tick)
	assert.Never(t, func() bool { return sched.scheduled() > 6 }, 50*time.Millisecond, tick)

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
	}, sched.delays())
}

func TestAttemptsResetAfterOpen(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())

	conn := connectOpen(t, client, dialer)
	conn.drop()
	require.Eventually(t, func() bool { return sched.scheduled() == 1 }, waitFor, tick)

	dialer.failFor(1)
	require.True(t, sched.fireLast())
	require.Eventually(t, func() bool { return sched.scheduled() == 2 }, waitFor, tick)

	require.True(t, sched.fireLast())
	require.Eventually(t, client.IsConnected, waitFor, tick)
	assert.Zero(t, client.Attempts())

	dialer.last().drop()
	require.Eventually(t, func() bool { return sched.scheduled() == 3 }, waitFor, tick)

	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 1 * time.Second}, sched.delays())
}

func TestStopsAfterMaxAttempts(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	rec := &recorder{}
	client.On(EventDisconnected, rec.handler(EventDisconnected))

	conn := connectOpen(t, client, dialer)
	dialer.failFor(100)
	conn.drop()

	for i := 1; i <= 5; i++ {
		require.Eventually(t, func() bool { return sched.scheduled() == i }, waitFor, tick)
		require.True(t, sched.fireLast())
	}

	require.Eventually(t, func() bool { return dialer.dials() == 6 }, waitFor, tick)
	require.Eventually(t, func() bool { return client.State() == StateClosed }, waitFor, tick)
	assert.Never(t, func() bool { return sched.scheduled() > 5 }, 50*time.Millisecond, tick)
	assert.Equal(t, 6, rec.count(EventDisconnected))

	// Stays closed until the caller connects again.
	dialer.failFor(0)
	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, client.IsConnected, waitFor, tick)
	assert.Equal(t, 7, dialer.dials())
	assert.Zero(t, client.Attempts())
}

func TestDialFailureGoesThroughBackoff(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	errs := make(chan json.RawMessage, 1)
	client.On(EventError, func(payload json.RawMessage) error {
		errs <- payload
		return nil
	})

	dialer.failFor(1)
	require.NoError(t, client.Connect(context.Background()))

	select {
	case payload := <-errs:
		assert.Contains(t, string(payload), "connection refused")
	case <-time.After(waitFor):
		t.Fatal("no error event")
	}
	require.Eventually(t, func() bool { return sched.scheduled() == 1 }, waitFor, tick)
	assert.Equal(t, StateClosed, client.State())

	require.True(t, sched.fireLast())
	require.Eventually(t, client.IsConnected, waitFor, tick)
}

func TestUnauthenticatedRetryStops(t *testing.T) {
	var tok atomic.Value
	tok.Store("abc")
	tokens := TokenProviderFunc(func(context.Context) (string, error) {
		return tok.Load().(string), nil
	})
	client, dialer, sched := newTestClient(tokens, DefaultReconnectPolicy())

	conn := connectOpen(t, client, dialer)
	tok.Store("")
	conn.drop()

	require.Eventually(t, func() bool { return sched.scheduled() == 1 }, waitFor, tick)
	require.True(t, sched.fireLast())

	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, 1, dialer.dials())
	assert.Never(t, func() bool { return sched.scheduled() > 1 }, 50*time.Millisecond, tick)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())

	conn := connectOpen(t, client, dialer)
	conn.drop()
	require.Eventually(t, func() bool { return sched.scheduled() == 1 }, waitFor, tick)

	client.Disconnect()
	assert.False(t, sched.fireLast(), "timer should have been stopped")

	// A timer that fired just before Stop must not resurrect the connection.
	sched.forceLast()

	assert.Never(t, func() bool { return dialer.dials() > 1 }, 50*time.Millisecond, tick)
	assert.Equal(t, StateClosed, client.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	rec := &recorder{}
	client.On(EventDisconnected, rec.handler(EventDisconnected))

	client.Disconnect()
	assert.Equal(t, StateClosed, client.State())
	assert.Zero(t, rec.count(EventDisconnected))

	conn := connectOpen(t, client, dialer)
	client.Disconnect()
	client.Disconnect()

	assert.True(t, conn.isClosed())
	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, 1, rec.count(EventDisconnected))
	assert.Never(t, func() bool { return sched.scheduled() > 0 }, 50*time.Millisecond, tick)
}

func TestDisconnectFromHandler(t *testing.T) {
	client, dialer, sched := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	rec := &recorder{}
	client.On(EventDisconnected, rec.handler(EventDisconnected))
	client.On("outbid", func(json.RawMessage) error {
		client.Disconnect()
		return nil
	})

	conn := connectOpen(t, client, dialer)
	conn.push(`{"type":"outbid","payload":{"product_title":"RX-78-2","new_bid":200}}`)

	require.Eventually(t, conn.isClosed, waitFor, tick)
	require.Eventually(t, func() bool { return rec.count(EventDisconnected) == 1 }, waitFor, tick)
	assert.Equal(t, StateClosed, client.State())
	assert.Never(t, func() bool { return sched.scheduled() > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, 1, rec.count(EventDisconnected))
}

func TestConnectAfterDisconnectDuringDial(t *testing.T) {
	release := make(chan struct{})
	tokens := TokenProviderFunc(func(context.Context) (string, error) {
		<-release
		return "abc", nil
	})
	client, dialer, _ := newTestClient(tokens, DefaultReconnectPolicy())

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return client.State() == StateConnecting }, waitFor, tick)
	client.Disconnect()
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, client.State())
	assert.Zero(t, dialer.dials())
}

func TestBidUpdateReachesSubscriber(t *testing.T) {
	client, dialer, _ := newTestClient(staticTokens("abc"), DefaultReconnectPolicy())
	received := make(chan json.RawMessage, 1)
	client.On("bid-update", func(payload json.RawMessage) error {
		received <- payload
		return nil
	})

	conn := connectOpen(t, client, dialer)
	assert.Equal(t, "ws://auction.test/ws?token=abc", dialer.targets[0])

	conn.push(`{"type":"bid-update","payload":{"auctionId":7,"amount":150}}`)

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"auctionId":7,"amount":150}`, string(payload))
	case <-time.After(waitFor):
		t.Fatal("bid-update was not dispatched")
	}
}

func TestKeepalivePing(t *testing.T) {
	client, dialer, _ := newTestClient(staticTokens("abc"), DefaultReconnectPolicy(), WithPingInterval(10*time.Millisecond))

	conn := connectOpen(t, client, dialer)
	require.Eventually(t, func() bool { return len(conn.written()) >= 2 }, waitFor, tick)
	assert.JSONEq(t, `{"type":"ping"}`, conn.written()[0])

	client.Disconnect()
	n := len(conn.written())
	assert.Never(t, func() bool { return len(conn.written()) > n }, 50*time.Millisecond, tick)
}
