// Package presence keeps one real-time channel per identity open to the group
// presence endpoint, reconnecting after drops, and dispatches inbound presence
// messages.
//
// All state transitions happen on the goroutine running Manager.Run. Dial,
// read and write goroutines and the reconnect timer only post events to it.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/proto"
)

// DefaultReconnectDelay is the fixed wait between a drop and the next attempt.
const DefaultReconnectDelay = 5 * time.Second

const (
	eventQueueSize = 64
	outboxSize     = 16
	subscriberSize = 16
)

var errStopped = errors.New("presence manager stopped")

// Options configures a Manager.
type Options struct {
	// BaseURL is the endpoint prefix; the identity is appended as a path segment.
	BaseURL        string
	ReconnectDelay time.Duration
	// DialTimeout bounds each connection attempt. Zero means no extra bound.
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Dialer       Dialer
	Inbound      InboundHandler
	Logger       *zerolog.Logger
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evSend
	evOpened
	evFrame
	evClosed
	evReconnect
)

type event struct {
	kind     eventKind
	gen      uint64
	identity string
	msg      proto.PresenceMessage
	data     []byte
	err      error
	ack      chan struct{}
}

// channel is the single live connection for one identity.
type channel struct {
	gen      uint64
	identity string
	url      string
	cancel   context.CancelFunc
	out      chan []byte
}

// Manager owns the presence channel for the current identity.
type Manager struct {
	baseURL        string
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	writeTimeout   time.Duration
	dialer         Dialer
	inbound        InboundHandler
	log            *zerolog.Logger

	events chan event
	done   chan struct{}

	// Owned by the Run goroutine.
	ctx      context.Context
	state    State
	identity string
	ch       *channel
	nextGen  uint64
	timer    *time.Timer
	timerGen uint64

	statusMu sync.RWMutex
	status   Status

	subsMu     sync.Mutex
	subs       map[uint64]chan Update
	nextSub    uint64
	subsClosed bool
}

// New builds a manager. Run must be started before status changes take effect.
func New(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Inbound == nil {
		opts.Inbound = NewDispatcher(nil, opts.Logger)
	}

	return &Manager{
		baseURL:        opts.BaseURL,
		reconnectDelay: opts.ReconnectDelay,
		dialTimeout:    opts.DialTimeout,
		writeTimeout:   opts.WriteTimeout,
		dialer:         opts.Dialer,
		inbound:        opts.Inbound,
		log:            opts.Logger,
		events:         make(chan event, eventQueueSize),
		done:           make(chan struct{}),
		subs:           make(map[uint64]chan Update),
	}
}

// Run processes events until ctx is cancelled, then tears the channel down and
// closes all subscriptions. It must be called exactly once.
func (m *Manager) Run(ctx context.Context) {
	m.ctx = ctx
	defer m.closeSubscribers()
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.disconnect()
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// Connect replaces any existing channel with a new one for identity.
// An empty identity is ignored.
func (m *Manager) Connect(identity string) {
	if identity == "" {
		m.log.Debug().Msg("connect without identity ignored")
		return
	}
	m.post(event{kind: evConnect, identity: identity})
}

// Disconnect closes the channel and cancels any pending reconnect. The status
// is Idle when it returns.
func (m *Manager) Disconnect() {
	ack := make(chan struct{})
	if !m.post(event{kind: evDisconnect, ack: ack}) {
		return
	}
	select {
	case <-ack:
	case <-m.done:
	}
}

// Send transmits msg if the channel is connected. Otherwise it starts a
// reconnect and drops msg. Only an invalid message is reported as an error.
func (m *Manager) Send(msg proto.PresenceMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if !m.post(event{kind: evSend, msg: msg}) {
		m.log.Debug().Str("operation", msg.Operation).Msg("send after stop dropped")
	}
	return nil
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// Connected reports whether the channel is open.
func (m *Manager) Connected() bool {
	return m.Status().Connected()
}

// Subscribe returns a stream of status and presence updates and a function to
// stop it. Updates are dropped for subscribers that fall behind.
func (m *Manager) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberSize)

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.subsClosed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case evConnect:
		m.connect(ev.identity)
	case evDisconnect:
		m.disconnect()
		close(ev.ack)
	case evSend:
		m.send(ev.msg)
	case evOpened:
		m.onOpen(ev.gen)
	case evFrame:
		m.onFrame(ev.gen, ev.data)
	case evClosed:
		m.onClose(ev.gen, ev.err)
	case evReconnect:
		m.onReconnect(ev.gen, ev.identity)
	}
}

func (m *Manager) connect(identity string) {
	if identity == "" {
		return
	}

	m.closeChannel()
	m.stopTimer()

	m.nextGen++
	ctx, cancel := context.WithCancel(m.ctx)
	ch := &channel{
		gen:      m.nextGen,
		identity: identity,
		url:      Endpoint(m.baseURL, identity),
		cancel:   cancel,
		out:      make(chan []byte, outboxSize),
	}
	m.ch = ch
	m.identity = identity
	m.setState(StateConnecting, "")

	m.log.Info().Str("identity", identity).Str("url", ch.url).Uint64("gen", ch.gen).Msg("connecting")
	go m.runChannel(ctx, ch)
}

func (m *Manager) disconnect() {
	m.closeChannel()
	m.stopTimer()
	m.identity = ""
	m.setState(StateIdle, "")
}

func (m *Manager) send(msg proto.PresenceMessage) {
	if m.state != StateConnected || m.ch == nil {
		m.log.Warn().Str("operation", msg.Operation).Str("state", m.state.String()).Msg("not connected, dropping message and reconnecting")
		m.connect(m.identity)
		return
	}

	data, err := proto.Encode(msg)
	if err != nil {
		m.log.Error().Err(err).Str("operation", msg.Operation).Msg("encode presence message")
		return
	}

	select {
	case m.ch.out <- data:
	default:
		m.log.Warn().Str("operation", msg.Operation).Msg("outbound buffer full, dropping message")
	}
}

func (m *Manager) onOpen(gen uint64) {
	if !m.current(gen) {
		return
	}
	m.stopTimer()
	m.setState(StateConnected, "")
	m.log.Info().Str("identity", m.identity).Uint64("gen", gen).Msg("presence channel open")
}

func (m *Manager) onFrame(gen uint64, data []byte) {
	if !m.current(gen) {
		return
	}
	msg, err := m.inbound.HandleFrame(m.ctx, data)
	if err != nil {
		m.log.Warn().Err(err).Int("bytes", len(data)).Msg("discarding inbound frame")
		return
	}
	m.broadcast(Update{Kind: UpdatePresence, Status: m.Status(), Message: msg})
}

func (m *Manager) onClose(gen uint64, err error) {
	if !m.current(gen) {
		return
	}
	m.ch = nil

	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	m.setState(StateDisconnected, reason)
	m.log.Warn().Str("identity", m.identity).Str("reason", reason).Dur("retry_in", m.reconnectDelay).Msg("presence channel closed")
	m.armTimer(m.identity)
}

func (m *Manager) onReconnect(gen uint64, identity string) {
	if m.timer == nil || gen != m.timerGen {
		return
	}
	m.timer = nil
	m.log.Info().Str("identity", identity).Msg("attempting to reconnect")
	m.connect(identity)
}

// current reports whether gen belongs to the live channel.
func (m *Manager) current(gen uint64) bool {
	return m.ch != nil && m.ch.gen == gen
}

func (m *Manager) closeChannel() {
	if m.ch == nil {
		return
	}
	m.ch.cancel()
	m.ch = nil
}

// armTimer replaces any pending reconnect with a single new one.
func (m *Manager) armTimer(identity string) {
	m.stopTimer()
	gen := m.timerGen
	m.timer = time.AfterFunc(m.reconnectDelay, func() {
		m.post(event{kind: evReconnect, gen: gen, identity: identity})
	})
}

// stopTimer cancels the pending reconnect. Bumping the generation also voids a
// fire that is already queued.
func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

func (m *Manager) setState(state State, reason string) {
	m.state = state
	st := Status{State: state, Identity: m.identity, Reason: reason}

	m.statusMu.Lock()
	if m.status == st {
		m.statusMu.Unlock()
		return
	}
	m.status = st
	m.statusMu.Unlock()

	m.broadcast(Update{Kind: UpdateStatus, Status: st})
}

func (m *Manager) broadcast(u Update) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, c := range m.subs {
		select {
		case c <- u:
		default:
			// Drop if slow consumer.
		}
	}
}

func (m *Manager) closeSubscribers() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, c := range m.subs {
		delete(m.subs, id)
		close(c)
	}
	m.subsClosed = true
}

// runChannel dials and pumps one channel until it fails or is cancelled.
func (m *Manager) runChannel(ctx context.Context, ch *channel) {
	dialCtx, cancelDial := ctx, context.CancelFunc(func() {})
	if m.dialTimeout > 0 {
		dialCtx, cancelDial = context.WithTimeout(ctx, m.dialTimeout)
	}
	conn, err := m.dialer.Dial(dialCtx, ch.url)
	cancelDial()
	if err != nil {
		m.post(event{kind: evClosed, gen: ch.gen, err: err})
		return
	}

	if !m.post(event{kind: evOpened, gen: ch.gen}) {
		_ = conn.Close()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)
	go func() {
		errCh <- m.readLoop(loopCtx, ch, conn)
	}()
	go func() {
		errCh <- m.writeLoop(loopCtx, ch, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	_ = conn.Close()
	m.post(event{kind: evClosed, gen: ch.gen, err: err})
}

func (m *Manager) readLoop(ctx context.Context, ch *channel, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !m.post(event{kind: evFrame, gen: ch.gen, data: data}) {
			return errStopped
		}
	}
}

func (m *Manager) writeLoop(ctx context.Context, ch *channel, conn Conn) error {
	for {
		select {
		case data := <-ch.out:
			writeCtx, cancel := ctx, context.CancelFunc(func() {})
			if m.writeTimeout > 0 {
				writeCtx, cancel = context.WithTimeout(ctx, m.writeTimeout)
			}
			err := conn.Write(writeCtx, data)
			cancel()
			if err != nil {
				m.log.Error().Err(err).Str("identity", ch.identity).Msg("write presence message")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
