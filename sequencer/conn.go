package sequencer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/playout/config"
	"github.com/c360/playout/errors"
	"github.com/c360/playout/metric"
	"github.com/c360/playout/pkg/retry"
	"github.com/c360/playout/wire"
)

// sweepInterval is how often idle reply accumulations are evicted.
const sweepInterval = 30 * time.Second

// Callbacks routes a connection's inbound traffic and state transitions to
// the owning engine. All callbacks are invoked from the connection's own
// goroutines; implementations must not block.
type Callbacks struct {
	// OnNotification receives server-originated frames (request ID "*").
	OnNotification func(channelID string, msg wire.Message)
	// OnStatusChange fires on every connection state transition.
	OnStatusChange func(channelID string, st Status, err error)
	// OnQueryReply receives the reassembled payload of an initial query.
	OnQueryReply func(channelID string, kind QueryKind, payload []byte)
}

type replyResult struct {
	payload []byte
	err     error
}

type pendingReply struct {
	kind QueryKind
	ch   chan replyResult
}

// Conn maintains the connection to one channel's sequencer. Message IDs are
// allocated from an atomic counter reset to 1 on every (re)connect; replies
// are correlated back by ID, with chunked query replies reassembled before
// delivery. An unexpected close schedules a reconnect after the configured
// delay, and every reconnect replays the handshake, the subscription set and
// the initial queries in full.
type Conn struct {
	channel config.Channel
	cfg     config.SequencerConfig
	cbs     Callbacks
	logger  *slog.Logger
	metrics *connMetrics

	nextID atomic.Int64

	mu        sync.Mutex
	conn      net.Conn
	status    Status
	lastErr   error
	reconnect *time.Timer
	closed    bool
	gen       uint64
	done      chan struct{}

	pendingMu sync.Mutex
	pending   map[int64]*pendingReply

	reasm        *wire.Reassembler
	frameErrRate *rate.Limiter

	wg sync.WaitGroup
}

// NewConn creates an unconnected channel connection. reg may be nil in
// tests.
func NewConn(channel config.Channel, cfg config.SequencerConfig, cbs Callbacks, reg *metric.Registry, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		channel:      channel,
		cfg:          cfg,
		cbs:          cbs,
		logger:       logger.With("channel", channel.ID, "addr", channel.Addr()),
		metrics:      newConnMetrics(reg, channel.ID),
		pending:      make(map[int64]*pendingReply),
		reasm:        wire.NewReassembler(),
		frameErrRate: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// ChannelID returns the configured channel identifier.
func (c *Conn) ChannelID() string {
	return c.channel.ID
}

// Status returns the current connection state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the error behind the most recent failure, if any.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials the channel, performs the handshake, replays the
// subscription set and issues the initial state queries. On dial failure the
// connection enters the error state and a reconnect is scheduled.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "sequencer", "Connect", c.channel.ID)
	}
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.stopReconnectLocked()
	notify := c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()
	notify()

	// a few quick dial attempts; persistent failure falls back to the fixed
	// reconnect timer
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	var nc net.Conn
	err := retry.Do(ctx, retry.Dial(), func() error {
		var derr error
		nc, derr = dialer.DialContext(ctx, "tcp", c.channel.Addr())
		return derr
	})
	if err != nil {
		c.mu.Lock()
		notify = c.setStatusLocked(StatusError, err)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		notify()
		return errors.WrapTransient(err, "sequencer", "Connect", "dial "+c.channel.Addr())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		nc.Close()
		return errors.WrapFatal(errors.ErrShuttingDown, "sequencer", "Connect", c.channel.ID)
	}
	c.conn = nc
	c.gen++
	gen := c.gen
	c.done = make(chan struct{})
	done := c.done
	c.nextID.Store(0)
	notify = c.setStatusLocked(StatusConnected, nil)
	c.mu.Unlock()
	notify()
	c.metrics.connected.Set(1)

	if err := c.sendInitialSequence(); err != nil {
		c.handleDisconnect(gen, err)
		return err
	}

	c.wg.Add(2)
	go c.readLoop(nc, gen)
	go c.sweepLoop(done)

	c.logger.Info("channel connected")
	return nil
}

// sendInitialSequence runs the handshake, subscriptions and initial queries
// in order. Replies to the queries arrive later through the read loop.
func (c *Conn) sendInitialSequence() error {
	if _, err := c.send(Handshake()); err != nil {
		return err
	}
	for _, msg := range subscriptions() {
		if _, err := c.send(msg); err != nil {
			return err
		}
	}
	for _, q := range initialQueries() {
		id := c.nextID.Add(1)
		c.addPending(id, &pendingReply{kind: q.kind})
		if err := c.write(id, q.msg); err != nil {
			c.removePending(id)
			return err
		}
	}
	return nil
}

// Disconnect closes the connection intentionally: the reconnect timer is
// cancelled and no new one is scheduled. Waiting Fetch calls fail.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.stopReconnectLocked()
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.closeDoneLocked()
	notify := c.setStatusLocked(StatusDisconnected, nil)
	c.mu.Unlock()
	notify()

	c.metrics.connected.Set(0)
	c.failPending(errors.ErrNotConnected)
	c.logger.Info("channel disconnected")
}

// Close disconnects and permanently retires the connection.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Disconnect()
	c.wg.Wait()
}

// Send assigns the next message ID to msg, writes it and returns the ID.
func (c *Conn) Send(msg wire.Message) (int64, error) {
	id, err := c.send(msg)
	if err != nil {
		return 0, err
	}
	c.logger.Info("command sent", "id", id, "verb", msg.Verb, "target", msg.Arg(0))
	return id, nil
}

func (c *Conn) send(msg wire.Message) (int64, error) {
	id := c.nextID.Add(1)
	if err := c.write(id, msg); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Conn) write(id int64, msg wire.Message) error {
	msg.RequestID = strconv.FormatInt(id, 10)

	c.mu.Lock()
	nc := c.conn
	c.mu.Unlock()
	if nc == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "sequencer", "write", c.channel.ID)
	}

	if _, err := nc.Write(wire.Encode(msg)); err != nil {
		return errors.WrapTransient(err, "sequencer", "write", msg.Verb)
	}
	c.metrics.commandsSent.Inc()
	c.logger.Debug("frame written", "id", id, "verb", msg.Verb)
	return nil
}

// Fetch queries the subtree at path down to depth and waits for the complete
// reply. When the fetch timeout elapses mid-stream, whatever bytes have
// arrived are returned with a nil error; callers must treat the content as
// possibly incomplete.
func (c *Conn) Fetch(ctx context.Context, path string, depth int) ([]byte, error) {
	id := c.nextID.Add(1)
	reqID := strconv.FormatInt(id, 10)
	p := &pendingReply{ch: make(chan replyResult, 1)}
	c.addPending(id, p)

	if err := c.write(id, Get(path, depth)); err != nil {
		c.removePending(id)
		return nil, err
	}

	timeout := c.cfg.FetchTimeout
	if timeout == 0 {
		timeout = config.DefaultFetchTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return res.payload, res.err

	case <-timer.C:
		c.removePending(id)
		partial := c.reasm.Partial(reqID)
		c.metrics.fetchTimeouts.Inc()
		c.logger.Warn("fetch timed out, returning partial content",
			"path", path, "id", id, "bytes", len(partial))
		return partial, nil

	case <-ctx.Done():
		c.removePending(id)
		partial := c.reasm.Partial(reqID)
		return partial, errors.WrapTransient(ctx.Err(), "sequencer", "Fetch", path)
	}
}

// readLoop decodes frames until the connection fails. Malformed frames are
// dropped and the stream resynchronized at the next newline; only transport
// errors end the loop.
func (c *Conn) readLoop(nc net.Conn, gen uint64) {
	defer c.wg.Done()

	reader := bufio.NewReader(nc)
	for {
		msg, err := wire.ReadMessage(reader)
		if err != nil {
			if errors.IsInvalid(err) {
				c.metrics.frameErrors.Inc()
				if c.frameErrRate.Allow() {
					c.logger.Warn("dropping malformed frame", "error", err)
				}
				if _, serr := reader.ReadString('\n'); serr != nil {
					c.handleDisconnect(gen, serr)
					return
				}
				continue
			}
			c.handleDisconnect(gen, err)
			return
		}

		c.metrics.framesDecoded.Inc()
		c.dispatch(msg)
	}
}

// sweepLoop evicts reply accumulations whose terminal chunk never arrived.
func (c *Conn) sweepLoop(done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := c.reasm.Sweep(2 * c.cfg.FetchTimeout); n > 0 {
				c.logger.Warn("evicted stalled reply accumulations", "count", n)
			}
		}
	}
}

// dispatch routes one inbound frame: notifications out through the callback,
// numeric-ID replies to their pending waiters.
func (c *Conn) dispatch(msg wire.Message) {
	if msg.IsNotification() {
		if c.cbs.OnNotification != nil {
			c.cbs.OnNotification(c.channel.ID, msg)
		}
		return
	}

	id, err := strconv.ParseInt(msg.RequestID, 10, 64)
	if err != nil {
		c.metrics.frameErrors.Inc()
		if c.frameErrRate.Allow() {
			c.logger.Warn("dropping frame with invalid request id", "request_id", msg.RequestID)
		}
		return
	}

	c.pendingMu.Lock()
	p, ok := c.pending[id]
	c.pendingMu.Unlock()

	if !ok {
		// Ack for a fire-and-forget command (subscribe, schedule, handshake).
		if msg.Verb == "error" {
			c.logger.Warn("command rejected", "id", id, "detail", strings.Join(msg.Args, " "))
		} else {
			c.logger.Debug("command acknowledged", "id", id, "verb", msg.Verb)
		}
		return
	}

	switch msg.Verb {
	case "ok":
		payload, done := c.reasm.Add(msg.RequestID, []byte(msg.Arg(0)))
		if !done {
			return
		}
		c.removePending(id)
		c.deliver(p, payload, nil)

	case "error":
		c.removePending(id)
		c.reasm.Drop(msg.RequestID)
		err := fmt.Errorf("%w: %s", errors.ErrCommandFailed, strings.Join(msg.Args, " "))
		c.deliver(p, nil, errors.WrapTransient(err, "sequencer", "dispatch", "request "+msg.RequestID))

	default:
		c.logger.Debug("ignoring reply with unexpected verb", "id", id, "verb", msg.Verb)
	}
}

func (c *Conn) deliver(p *pendingReply, payload []byte, err error) {
	if p.ch != nil {
		select {
		case p.ch <- replyResult{payload: payload, err: err}:
		default:
		}
		return
	}
	if err != nil {
		c.logger.Warn("initial query failed", "kind", p.kind.String(), "error", err)
		return
	}
	if c.cbs.OnQueryReply != nil {
		c.cbs.OnQueryReply(c.channel.ID, p.kind, payload)
	}
}

// handleDisconnect reacts to an unexpected transport failure: the connection
// enters the error state, pending replies fail and a reconnect is scheduled.
// Stale generations (an intentional Disconnect already superseded this
// connection) are ignored.
func (c *Conn) handleDisconnect(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.closeDoneLocked()
	notify := c.setStatusLocked(StatusError, err)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	notify()

	c.metrics.connected.Set(0)
	c.failPending(errors.ErrConnectionLost)
	c.logger.Warn("connection lost", "error", err)
}

// scheduleReconnectLocked arms the reconnect timer. Callers hold c.mu.
func (c *Conn) scheduleReconnectLocked() {
	if c.closed || c.reconnect != nil {
		return
	}
	delay := c.cfg.ReconnectDelay
	if delay == 0 {
		delay = config.DefaultReconnectDelay
	}
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		c.metrics.reconnects.Inc()
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
		}
	})
	c.logger.Info("reconnect scheduled", "delay", delay)
}

func (c *Conn) closeDoneLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Conn) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// setStatusLocked updates the state and returns the callback to run after
// the lock is released.
func (c *Conn) setStatusLocked(st Status, err error) func() {
	if c.status == st && err == nil {
		return func() {}
	}
	c.status = st
	c.lastErr = err
	if c.cbs.OnStatusChange == nil {
		return func() {}
	}
	channelID := c.channel.ID
	cb := c.cbs.OnStatusChange
	return func() { cb(channelID, st, err) }
}

func (c *Conn) addPending(id int64, p *pendingReply) {
	c.pendingMu.Lock()
	c.pending[id] = p
	c.pendingMu.Unlock()
}

func (c *Conn) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPending delivers err to every waiter and clears the correlation table.
func (c *Conn) failPending(cause error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingReply)
	c.pendingMu.Unlock()

	for id, p := range pending {
		c.reasm.Drop(strconv.FormatInt(id, 10))
		if p.ch != nil {
			select {
			case p.ch <- replyResult{err: errors.WrapTransient(cause, "sequencer", "failPending", "request aborted")}:
			default:
			}
		}
	}
}
