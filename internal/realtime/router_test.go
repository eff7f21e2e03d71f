package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDispatchOrderAndIsolation(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	var calls []string

	router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "A")
		return errors.New("render failed")
	})
	router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "B")
		panic("nil map")
	})
	router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "C")
		return nil
	})

	router.Dispatch([]byte(`{"type":"outbid","payload":{"new_bid":200}}`))
	router.Dispatch([]byte(`{"type":"outbid","payload":{"new_bid":300}}`))

	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C"}, calls)
}

func TestRouterInvokeWrapsFailures(t *testing.T) {
	router := NewRouter(zerolog.Nop())

	err := router.invoke("outbid", func(json.RawMessage) error { return errors.New("boom") }, nil)
	var subErr *SubscriberError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "outbid", subErr.EventType)
	assert.EqualError(t, subErr.Unwrap(), "boom")

	err = router.invoke("outbid", func(json.RawMessage) error { panic("kaboom") }, nil)
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRouterDuplicateRegistrations(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	rec := &recorder{}
	h := rec.handler("hit")

	first := router.On("new_bid", h)
	router.On("new_bid", h)
	router.Dispatch([]byte(`{"type":"new_bid","payload":{}}`))
	assert.Equal(t, 2, rec.count("hit"))

	router.Off("new_bid", first)
	router.Dispatch([]byte(`{"type":"new_bid","payload":{}}`))
	assert.Equal(t, 3, rec.count("hit"))
	assert.Equal(t, 1, router.Count("new_bid"))
}

func TestRouterOffInsideHandler(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	var calls []string

	var self, later Subscription
	self = router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "self")
		router.Off("outbid", self, later)
		return nil
	})
	later = router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "later")
		return nil
	})
	router.On("outbid", func(json.RawMessage) error {
		calls = append(calls, "kept")
		return nil
	})

	require.NotPanics(t, func() {
		router.Dispatch([]byte(`{"type":"outbid","payload":{}}`))
	})
	assert.Equal(t, []string{"self", "kept"}, calls)

	router.Dispatch([]byte(`{"type":"outbid","payload":{}}`))
	assert.Equal(t, []string{"self", "kept", "kept"}, calls)
}

func TestRouterOnInsideHandlerWaitsForNextFrame(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	rec := &recorder{}

	router.On("pong", func(json.RawMessage) error {
		router.On("pong", rec.handler("late"))
		return nil
	})

	router.Dispatch([]byte(`{"type":"pong"}`))
	assert.Zero(t, rec.count("late"))

	router.Dispatch([]byte(`{"type":"pong"}`))
	assert.Equal(t, 1, rec.count("late"))
}

func TestRouterOffAll(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	rec := &recorder{}
	router.On("outbid", rec.handler("a"))
	router.On("outbid", rec.handler("b"))
	router.On("new_bid", rec.handler("c"))

	router.Off("outbid")
	router.Off("never-registered")
	router.Off("new_bid", Subscription{eventType: "new_bid", id: 9999})

	router.Dispatch([]byte(`{"type":"outbid","payload":{}}`))
	router.Dispatch([]byte(`{"type":"new_bid","payload":{}}`))

	assert.Zero(t, rec.count("a"))
	assert.Zero(t, rec.count("b"))
	assert.Equal(t, 1, rec.count("c"))
	assert.Zero(t, router.Count("outbid"))
}

func TestRouterDropsMalformedFrames(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	rec := &recorder{}
	router.On("", rec.handler("empty"))

	for _, frame := range []string{
		`not json`,
		`[1,2,3]`,
		`{"payload":{}}`,
		`{"type":""}`,
		`{"type":42}`,
	} {
		require.NotPanics(t, func() { router.Dispatch([]byte(frame)) }, frame)
	}
	assert.Zero(t, rec.count("empty"))
}

func TestRouterLegacyPayloadShapes(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	var got []string
	router.On("new_bid", func(payload json.RawMessage) error {
		got = append(got, string(payload))
		return nil
	})

	router.Dispatch([]byte(`{"type":"new_bid","payload":{"amount":150}}`))
	router.Dispatch([]byte(`{"type":"new_bid","product_id":3,"data":{"amount":160},"timestamp":"2024-05-01T10:00:00"}`))
	router.Dispatch([]byte(`{"type":"new_bid","amount":170}`))

	require.Len(t, got, 3)
	assert.JSONEq(t, `{"amount":150}`, got[0])
	assert.JSONEq(t, `{"amount":160}`, got[1])
	assert.JSONEq(t, `{"type":"new_bid","amount":170}`, got[2])
}

func TestDecode(t *testing.T) {
	type bid struct {
		AuctionID int   `json:"auctionId"`
		Amount    int64 `json:"amount"`
	}

	got, err := Decode[bid](json.RawMessage(`{"auctionId":7,"amount":150}`))
	require.NoError(t, err)
	assert.Equal(t, bid{AuctionID: 7, Amount: 150}, got)

	_, err = Decode[bid](nil)
	assert.Error(t, err)

	_, err = Decode[bid](json.RawMessage(`{"amount":"lots"}`))
	assert.Error(t, err)
}

func TestParseEnvelopeErrors(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseEnvelope([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrParse)

	env, err := ParseEnvelope([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.Equal(t, "pong", env.Type)
	assert.JSONEq(t, `{"type":"pong"}`, string(env.Payload))
}

func TestRouterReroutesServerLifecycleFrames(t *testing.T) {
	router := NewRouter(zerolog.Nop())
	rec := &recorder{}
	router.On(EventConnected, rec.handler("local"))
	router.On("server."+EventConnected, rec.handler("server"))

	router.Dispatch([]byte(`{"type":"connected","message":"Connected to real-time notifications","user_id":3}`))
	assert.Zero(t, rec.count("local"))
	assert.Equal(t, 1, rec.count("server"))

	router.Emit(EventConnected, nil)
	assert.Equal(t, 1, rec.count("local"))
}
