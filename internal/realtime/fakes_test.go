package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var errDropped = errors.New("connection reset by peer")

type fakeConn struct {
	inbound   chan []byte
	drops     chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		drops:   make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.drops:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(frame string) {
	c.inbound <- []byte(frame)
}

func (c *fakeConn) drop() {
	c.drops <- errDropped
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		out = append(out, string(w))
	}
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	targets  []string
	conns    []*fakeConn
	failNext int
}

func (d *fakeDialer) Dial(_ context.Context, target string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.targets = append(d.targets, target)
	if d.failNext > 0 {
		d.failNext--
		return nil, fmt.Errorf("%w: connection refused", ErrTransport)
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) failFor(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired.Load() {
		return false
	}
	return t.stopped.CompareAndSwap(false, true)
}

// fakeScheduler records reconnect delays and fires them only when told to.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fireLast runs the most recent timer unless it was stopped.
func (s *fakeScheduler) fireLast() bool {
	s.mu.Lock()
	if len(s.timers) == 0 {
		s.mu.Unlock()
		return false
	}
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()

	if t.stopped.Load() || !t.fired.CompareAndSwap(false, true) {
		return false
	}
	t.fn()
	return true
}

// forceLast runs the most recent timer even if it was stopped, like a
// time.AfterFunc that fired just before Stop was called.
func (s *fakeScheduler) forceLast() {
	s.mu.Lock()
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()
	t.fired.Store(true)
	t.fn()
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handler(name string) Handler {
	return func(_ json.RawMessage) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, name)
		return nil
	}
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

func staticTokens(tok string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		return tok, nil
	})
}

func newTestClient(tokens TokenProvider, policy ReconnectPolicy, extra ...Option) (*Client, *fakeDialer, *fakeScheduler) {
	dialer := &fakeDialer{}
	sched := &fakeScheduler{}
	opts := append([]Option{
		WithDialer(dialer),
		WithReconnectPolicy(policy),
		WithLogger(zerolog.Nop()),
		withAfterFunc(sched.AfterFunc),
	}, extra...)
	return NewClient("ws://auction.test/ws", tokens, opts...), dialer, sched
}
