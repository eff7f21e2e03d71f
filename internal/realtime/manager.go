package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TokenProvider supplies the bearer credential attached to every dial.
// An empty token means no credential is available.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// eventSink receives everything the manager reads or synthesizes.
type eventSink interface {
	Dispatch(raw []byte)
	Emit(eventType string, payload json.RawMessage)
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Manager owns the lifecycle of one logical real-time connection.
//
// Every dial is tagged with a generation number. Callbacks carrying an older
// generation than the current one are ignored, so a superseded transport can
// neither change state nor schedule a reconnect.
type Manager struct {
	baseURL      string
	tokens       TokenProvider
	dialer       Dialer
	policy       ReconnectPolicy
	pingInterval time.Duration
	sink         eventSink
	logger       zerolog.Logger
	afterFunc    afterFunc

	mu            sync.Mutex
	state         ConnectionState
	gen           uint64
	conn          Conn
	attempts      int
	retry         stopper
	cancelDial    context.CancelFunc
	cancelSession context.CancelFunc
}

func newManager(baseURL string, tokens TokenProvider, sink eventSink, opts options) *Manager {
	return &Manager{
		baseURL:      baseURL,
		tokens:       tokens,
		dialer:       opts.dialer,
		policy:       opts.policy,
		pingInterval: opts.pingInterval,
		sink:         sink,
		logger:       opts.logger,
		afterFunc:    opts.afterFunc,
		state:        StateIdle,
	}
}

// Connect opens the connection unless it is already open or opening.
//
// The credential lookup runs on the caller's goroutine; the dial and all
// later transport I/O run in the background. A missing credential returns
// ErrUnauthenticated and a malformed base URL returns ErrTransport; in both
// cases the previous state is kept and no retry is scheduled.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, false)
}

func (m *Manager) connect(ctx context.Context, automatic bool) error {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.stopRetryLocked()
	if !automatic {
		m.attempts = 0
	}
	m.gen++
	gen := m.gen
	prev := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	token, err := m.tokens.Token(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	} else if token == "" {
		err = ErrUnauthenticated
	}
	if err != nil {
		m.restore(gen, prev)
		m.logger.Warn().Err(err).Msg("cannot connect without a credential 🔒")
		return err
	}

	endpoint, err := buildEndpoint(m.baseURL, token)
	if err != nil {
		m.restore(gen, prev)
		m.logger.Error().Err(err).Str("base_url", m.baseURL).Msg("invalid real-time endpoint 😣")
		return err
	}

	// The dial must outlive the caller's request-scoped context but still
	// honor Disconnect.
	dialCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.cancelDial = cancel
	m.mu.Unlock()

	m.logger.Debug().Int("attempt", m.Attempts()).Msg("dialing real-time endpoint")
	go m.run(dialCtx, gen, endpoint)

	return nil
}

// Disconnect cancels any pending reconnect and in-flight dial, closes the
// live transport and leaves the manager Closed. Safe to call repeatedly and
// from inside event handlers.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopRetryLocked()
	m.cancelLocked()
	m.gen++
	gen := m.gen
	m.attempts = 0
	prev := m.state
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()

		m.mu.Lock()
		if m.gen == gen {
			m.state = StateClosed
		}
		m.mu.Unlock()
	}

	if prev == StateOpen || prev == StateConnecting {
		m.logger.Info().Msg("real-time connection closed by client")
		m.sink.Emit(EventDisconnected, nil)
	}
}

// IsConnected reports whether the state is exactly StateOpen.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnects scheduled since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Write sends one frame on the live transport.
func (m *Manager) Write(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, gen uint64, endpoint string) {
	conn, err := m.dialer.Dial(ctx, endpoint)
	if err != nil {
		m.handleError(gen, err)
		m.handleClose(gen)
		return
	}

	if !m.handleOpen(gen, conn) {
		_ = conn.Close()
		return
	}

	m.readLoop(gen, conn)
}

func (m *Manager) handleOpen(gen uint64, conn Conn) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	superseded := m.conn
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	sessionCtx, cancel := context.WithCancel(context.Background())
	m.cancelSession = cancel
	m.mu.Unlock()

	if superseded != nil && superseded != conn {
		_ = superseded.Close()
	}

	m.logger.Info().Msg("real-time connection established ✅")
	m.sink.Emit(EventConnected, nil)

	if m.pingInterval > 0 {
		go m.keepalive(sessionCtx)
	}
	return true
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.handleError(gen, err)
			}
			m.handleClose(gen)
			return
		}

		if !m.current(gen) {
			return
		}
		m.sink.Dispatch(data)
	}
}

// handleError only reports; the close that follows decides what happens next.
func (m *Manager) handleError(gen uint64, err error) {
	if !m.current(gen) {
		return
	}

	if !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	m.logger.Error().Err(err).Msg("real-time transport error 😣")

	payload, _ := json.Marshal(map[string]string{"message": err.Error()})
	m.sink.Emit(EventError, payload)
}

func (m *Manager) handleClose(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateClosed

	retry := m.attempts < m.policy.MaxAttempts
	var delay time.Duration
	if retry {
		delay = m.policy.Delay(m.attempts)
		m.attempts++
	}
	attempt := m.attempts
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	m.sink.Emit(EventDisconnected, nil)

	if !retry {
		m.logger.Warn().
			Int("max_attempts", m.policy.MaxAttempts).
			Msg("giving up on reconnecting, waiting for an explicit connect")
		return
	}

	// A handler for the disconnected event may already have reconnected or
	// disconnected; only schedule if nothing moved on.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != StateClosed {
		return
	}
	m.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("scheduling reconnect")
	m.retry = m.afterFunc(delay, func() {
		m.reconnect(gen)
	})
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateClosed {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.mu.Unlock()

	if err := m.connect(context.Background(), true); err != nil {
		m.logger.Warn().Err(err).Msg("reconnect aborted")
	}
}

func (m *Manager) keepalive(ctx context.Context) {
	frame, err := json.Marshal(OutboundEnvelope{Type: CommandPing})
	if err != nil {
		return
	}

	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Write(frame); err != nil {
				m.logger.Debug().Err(err).Msg("keepalive ping failed")
			}
		}
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// restore puts back the state Connect found, unless something superseded it meanwhile.
func (m *Manager) restore(gen uint64, prev ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.state == StateConnecting {
		m.state = prev
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) cancelLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.cancelSession != nil {
		m.cancelSession()
		m.cancelSession = nil
	}
}

// buildEndpoint attaches the credential as the token query parameter.
// http and https base URLs are mapped onto ws and wss.
func buildEndpoint(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse base url: %v", ErrTransport, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrTransport, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrTransport)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
