package presence

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/notify"
)

const waitTimeout = 2 * time.Second

var errFakeClosed = errors.New("fake conn closed")

// fakeConn is an in-memory transport driven by the test.
type fakeConn struct {
	url       string
	inbound   chan []byte
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:     url,
		inbound: make(chan []byte, 16),
		written: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	c.written <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands every opened connection to the test through conns.
type fakeDialer struct {
	dials atomic.Int32
	fail  atomic.Int32 // number of upcoming dials that fail
	conns chan *fakeConn
	urls  chan string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns: make(chan *fakeConn, 16),
		urls:  make(chan string, 16),
	}
}

func (d *fakeDialer) Dial(_ context.Context, target string) (Conn, error) {
	d.dials.Add(1)
	select {
	case d.urls <- target:
	default:
	}
	if d.fail.Load() > 0 {
		d.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn(target)
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("expected a dial")
		return nil
	}
}

// recordingSink remembers every request it receives.
type recordingSink struct {
	mu   sync.Mutex
	reqs []notify.Request
}

func (s *recordingSink) Notify(_ context.Context, req notify.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *recordingSink) requests() []notify.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Request(nil), s.reqs...)
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	sink   *recordingSink
}

func startManager(t *testing.T, delay time.Duration) *harness {
	t.Helper()

	logger := zerolog.Nop()
	dialer := newFakeDialer()
	sink := &recordingSink{}
	m := New(Options{
		BaseURL:        "ws://snuz.test/ws",
		ReconnectDelay: delay,
		Dialer:         dialer,
		Inbound:        NewDispatcher(sink, &logger),
		Logger:         &logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{m: m, dialer: dialer, sink: sink}
}

func waitState(t *testing.T, m *Manager, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status().State == state
	}, waitTimeout, 5*time.Millisecond, "expected state %s, have %s", state, m.Status().State)
}

func mustWrite(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	select {
	case data := <-c.written:
		return data
	case <-time.After(waitTimeout):
		t.Fatalf("expected a write on %s", c.url)
		return nil
	}
}

func assertNoWrite(t *testing.T, c *fakeConn, wait time.Duration) {
	t.Helper()
	select {
	case data := <-c.written:
		t.Fatalf("unexpected write on %s: %s", c.url, data)
	case <-time.After(wait):
	}
}
