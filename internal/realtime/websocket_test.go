package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuctionServer(t *testing.T, token string) (string, <-chan *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", accepted
}

func TestWebsocketRoundTrip(t *testing.T) {
	url, accepted := newAuctionServer(t, "abc")
	client := NewClient(url, staticTokens("abc"),
		WithReconnectPolicy(ReconnectPolicy{MaxAttempts: 0}),
		WithLogger(zerolog.Nop()),
	)
	t.Cleanup(client.Disconnect)

	updates := make(chan json.RawMessage, 1)
	client.On("bid-update", func(payload json.RawMessage) error {
		updates <- payload
		return nil
	})
	disconnected := make(chan struct{}, 1)
	client.On(EventDisconnected, func(json.RawMessage) error {
		disconnected <- struct{}{}
		return nil
	})

	require.NoError(t, client.Connect(context.Background()))

	var server *websocket.Conn
	select {
	case server = <-accepted:
	case <-time.After(waitFor):
		t.Fatal("server never accepted")
	}
	require.Eventually(t, client.IsConnected, waitFor, tick)

	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"bid-update","payload":{"auctionId":7,"amount":150}}`)))
	select {
	case payload := <-updates:
		assert.JSONEq(t, `{"auctionId":7,"amount":150}`, string(payload))
	case <-time.After(waitFor):
		t.Fatal("bid-update not received")
	}

	require.NoError(t, client.PlaceBid("7", 175))
	_, frame, err := server.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"place-bid","payload":{"auctionId":"7","amount":175}}`, string(frame))

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "auction over")
	require.NoError(t, server.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)))

	select {
	case <-disconnected:
	case <-time.After(waitFor):
		t.Fatal("disconnect not observed")
	}
	assert.Equal(t, StateClosed, client.State())
	_ = server.Close()
}

func TestWebsocketHandshakeRejected(t *testing.T) {
	url, _ := newAuctionServer(t, "abc")
	client := NewClient(url, staticTokens("stale"),
		WithReconnectPolicy(ReconnectPolicy{MaxAttempts: 0}),
		WithLogger(zerolog.Nop()),
	)

	errs := make(chan json.RawMessage, 1)
	client.On(EventError, func(payload json.RawMessage) error {
		errs <- payload
		return nil
	})

	require.NoError(t, client.Connect(context.Background()))

	select {
	case payload := <-errs:
		assert.Contains(t, string(payload), "401")
	case <-time.After(waitFor):
		t.Fatal("handshake failure not reported")
	}
	require.Eventually(t, func() bool { return client.State() == StateClosed }, waitFor, tick)
}
