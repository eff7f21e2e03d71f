package realtime

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is one real-time event client: a Manager feeding a Router, with an
// Encoder writing through the Manager. Construct it once in the composition
// root and pass it to whatever needs it.
type Client struct {
	*Manager
	*Router
	*Encoder
}

type options struct {
	dialer       Dialer
	policy       ReconnectPolicy
	pingInterval time.Duration
	logger       zerolog.Logger
	afterFunc    afterFunc
}

// Option configures a Client.
type Option func(*options)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithPingInterval enables an application-level ping while open. Zero disables it.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		o.pingInterval = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func withAfterFunc(f afterFunc) Option {
	return func(o *options) {
		o.afterFunc = f
	}
}

// NewClient builds a client for baseURL, e.g. wss://host/ws. Nothing is dialed until Connect.
func NewClient(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	o := options{
		policy:    DefaultReconnectPolicy(),
		logger:    log.Logger.With().Str("component", "realtime").Logger(),
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = NewWebsocketDialer()
	}

	router := NewRouter(o.logger)
	manager := newManager(baseURL, tokens, router, o)

	return &Client{
		Manager: manager,
		Router:  router,
		Encoder: NewEncoder(manager, o.logger),
	}
}
