// Package engine is the playout facade: it owns one sequencer connection per
// configured channel, routes their notifications through the classifier into
// the state reconciler, and exposes commands and reconciled-state queries to
// the gateway and to embedding services.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/playout/config"
	"github.com/c360/playout/errors"
	"github.com/c360/playout/event"
	"github.com/c360/playout/health"
	"github.com/c360/playout/metric"
	"github.com/c360/playout/notify"
	"github.com/c360/playout/sequencer"
	"github.com/c360/playout/state"
	"github.com/c360/playout/wire"
)

// showContentDepth is the tree depth used when fetching one show's full
// content.
const showContentDepth = 6

// ChannelInfo describes one managed channel for the API surface.
type ChannelInfo struct {
	ID        string `json:"id"`
	Addr      string `json:"addr"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// Engine coordinates connections, classification and reconciliation.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.Registry
	notifier *notify.Notifier
	tracker  *health.Tracker
	rec      *state.Reconciler
	metrics  *engineMetrics

	mu          sync.Mutex
	conns       map[string]*sequencer.Conn
	channels    map[string]config.Channel
	initialized bool
	started     bool
}

// New creates an engine. registry and notifier may be nil; the engine then
// runs without metrics or fanout.
func New(cfg *config.Config, registry *metric.Registry, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		registry: registry,
		notifier: notifier,
		tracker:  health.NewTracker(),
		conns:    make(map[string]*sequencer.Conn),
		channels: make(map[string]config.Channel),
	}
}

// Initialize builds the reconciler and the per-channel connections. No
// network traffic happens until Start.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "engine", "Initialize", "double initialize")
	}

	opts := []state.Option{state.WithLogger(e.logger)}
	if e.cfg.Sequencer.FlushInterval > 0 {
		opts = append(opts, state.WithFlushInterval(e.cfg.Sequencer.FlushInterval))
	}
	if e.cfg.Sequencer.DebounceWindow > 0 {
		opts = append(opts, state.WithDebounceWindow(e.cfg.Sequencer.DebounceWindow))
	}
	e.rec = state.New(opts...)
	e.rec.OnFlush(e.publishState)
	e.metrics = newEngineMetrics(e.registry)

	for _, ch := range e.cfg.Channels {
		e.addChannelLocked(ch)
	}

	e.initialized = true
	return nil
}

// Start dials every configured channel. Individual dial failures are not
// fatal; the per-channel reconnect logic keeps trying.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "engine", "Start", "initialize first")
	}
	if e.started {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "engine", "Start", "double start")
	}
	e.started = true
	conns := make([]*sequencer.Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		if err := c.Connect(ctx); err != nil {
			e.logger.Warn("initial connect failed, reconnect scheduled",
				"channel", c.ChannelID(), "error", err)
		}
	}

	e.logger.Info("engine started", "channels", len(conns))
	return nil
}

// Stop disconnects every channel and commits pending state, bounded by
// timeout.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	conns := make([]*sequencer.Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.started = false
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, c := range conns {
			wg.Add(1)
			go func(c *sequencer.Conn) {
				defer wg.Done()
				c.Close()
			}(c)
		}
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.WrapTransient(errors.ErrConnectionTimeout, "engine", "Stop", "channel shutdown")
	}

	if e.rec != nil {
		e.rec.Close()
	}
	e.logger.Info("engine stopped")
	return err
}

// Connect adds ch to the managed set (if new) and dials it.
func (e *Engine) Connect(ctx context.Context, ch config.Channel) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "engine", "Connect", "initialize first")
	}
	c, ok := e.conns[ch.ID]
	if !ok {
		c = e.addChannelLocked(ch)
	}
	e.mu.Unlock()

	return c.Connect(ctx)
}

// Disconnect removes a channel entirely: the connection closes, any
// scheduled reconnect is cancelled, and every piece of reconciled state and
// metrics belonging to the channel is dropped.
func (e *Engine) Disconnect(channelID string) error {
	e.mu.Lock()
	c, ok := e.conns[channelID]
	if ok {
		delete(e.conns, channelID)
		delete(e.channels, channelID)
	}
	e.mu.Unlock()

	if !ok {
		return errors.WrapInvalid(errors.ErrChannelNotFound, "engine", "Disconnect", channelID)
	}

	c.Close()
	e.rec.RemoveChannel(channelID)
	e.rec.Flush()
	e.tracker.Remove("channel:" + channelID)
	if e.registry != nil {
		e.registry.UnregisterComponent("conn-" + channelID)
	}
	if e.metrics != nil {
		e.metrics.channelsActive.Dec()
	}

	e.logger.Info("channel removed", "channel", channelID)
	return nil
}

// ReconnectAll drops and re-establishes every connection, replaying the
// subscription sequence on each.
func (e *Engine) ReconnectAll(ctx context.Context) {
	e.mu.Lock()
	conns := make([]*sequencer.Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
		if err := c.Connect(ctx); err != nil {
			e.logger.Warn("reconnect failed, retry scheduled",
				"channel", c.ChannelID(), "error", err)
		}
	}
}

// SendCommand sends an arbitrary command on a channel and returns the
// assigned message ID.
func (e *Engine) SendCommand(channelID string, msg wire.Message) (int64, error) {
	c, err := e.conn(channelID)
	if err != nil {
		return 0, err
	}
	return c.Send(msg)
}

// TriggerAction fires an action node, e.g. a show's "take" action.
func (e *Engine) TriggerAction(channelID, actionPath string) (int64, error) {
	return e.SendCommand(channelID, sequencer.TriggerAction(actionPath))
}

// SetNext cues an element as next on a carousel feed.
func (e *Engine) SetNext(channelID, logicPath, elementPath, carousel, feed string) (int64, error) {
	return e.SendCommand(channelID, sequencer.SetAsNext(logicPath, elementPath, carousel, feed))
}

// FetchShowContent retrieves one show's full subtree. On timeout the content
// returned is whatever arrived and may be incomplete.
func (e *Engine) FetchShowContent(ctx context.Context, channelID, showPath string) ([]byte, error) {
	c, err := e.conn(channelID)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, showPath, showContentDepth)
}

// Snapshot returns the current reconciled state. The value is shared and
// must not be mutated.
func (e *Engine) Snapshot() *state.Snapshot {
	return e.rec.Snapshot()
}

// IsElementPlaying reports whether the element is on air on any channel.
func (e *Engine) IsElementPlaying(id string) bool {
	return e.rec.Snapshot().IsElementPlaying(id)
}

// IsElementNext reports whether the element is scheduled next on any channel.
func (e *Engine) IsElementNext(id string) bool {
	return e.rec.Snapshot().IsElementNext(id)
}

// CarouselState returns a carousel's on/off flag; ok is false when the
// carousel has never been reported.
func (e *Engine) CarouselState(channelID, carousel string) (on, ok bool) {
	return e.rec.Snapshot().CarouselState(channelID, carousel)
}

// Channels lists the managed channels and their connection states.
func (e *Engine) Channels() []ChannelInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]ChannelInfo, 0, len(e.conns))
	for id, c := range e.conns {
		ch := e.channels[id]
		info := ChannelInfo{
			ID:     id,
			Addr:   ch.Addr(),
			Type:   ch.Type,
			Status: c.Status().String(),
		}
		if err := c.LastError(); err != nil {
			info.LastError = err.Error()
		}
		infos = append(infos, info)
	}
	return infos
}

// ChannelStatus returns one channel's connection state.
func (e *Engine) ChannelStatus(channelID string) (sequencer.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[channelID]
	if !ok {
		return sequencer.StatusDisconnected, false
	}
	return c.Status(), true
}

// Health returns the aggregated health report.
func (e *Engine) Health() health.Status {
	return e.tracker.Status()
}

// addChannelLocked registers a channel connection. Callers hold e.mu.
func (e *Engine) addChannelLocked(ch config.Channel) *sequencer.Conn {
	c := sequencer.NewConn(ch, e.cfg.Sequencer, sequencer.Callbacks{
		OnNotification: e.handleNotification,
		OnStatusChange: e.handleStatusChange,
		OnQueryReply:   e.handleQueryReply,
	}, e.registry, e.logger)
	e.conns[ch.ID] = c
	e.channels[ch.ID] = ch
	if e.metrics != nil {
		e.metrics.channelsActive.Inc()
	}
	return c
}

func (e *Engine) conn(channelID string) (*sequencer.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[channelID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrChannelNotFound, "engine", "conn", channelID)
	}
	return c, nil
}

// handleNotification classifies one server-originated frame and feeds the
// result to the reconciler. Frames matching no rule are counted and dropped.
func (e *Engine) handleNotification(channelID string, msg wire.Message) {
	ev, ok := event.Classify(msg)
	if !ok {
		e.metrics.framesIgnored.Inc()
		return
	}
	e.metrics.eventsClassified.WithLabelValues(ev.Kind()).Inc()

	if sc, isContent := ev.(event.ShowContentChanged); isContent {
		e.publishContentChanged(channelID, sc.Path)
	}
	e.rec.Apply(channelID, ev)
}

// handleQueryReply parses an initial-query payload into its bulk event.
func (e *Engine) handleQueryReply(channelID string, kind sequencer.QueryKind, payload []byte) {
	switch kind {
	case sequencer.QueryFeedBindings:
		e.rec.Apply(channelID, event.ParseFeedBindings(payload))
	case sequencer.QueryShowTree:
		e.rec.Apply(channelID, event.ParseActiveElements(payload))
	case sequencer.QueryInitialState:
		e.rec.Apply(channelID, event.ParseCarouselStates(payload))
	}
	e.logger.Debug("initial query applied", "channel", channelID,
		"kind", kind.String(), "bytes", len(payload))
}

func (e *Engine) handleStatusChange(channelID string, st sequencer.Status, err error) {
	var hs health.State
	detail := ""
	switch st {
	case sequencer.StatusConnected:
		hs = health.StateHealthy
	case sequencer.StatusConnecting:
		hs = health.StateDegraded
		detail = "connecting"
	case sequencer.StatusError:
		hs = health.StateDegraded
		detail = "awaiting reconnect"
	default:
		hs = health.StateDegraded
		detail = "disconnected"
	}
	if err != nil {
		detail = err.Error()
	}
	e.tracker.Set("channel:"+channelID, hs, detail)

	if e.notifier != nil {
		u := notify.NewUpdate(notify.TypeChannelStatus)
		u.Channel = channelID
		u.Status = st.String()
		u.Detail = detail
		e.notifier.Publish(u)
	}
}

func (e *Engine) publishState(s *state.Snapshot) {
	if e.notifier == nil {
		return
	}
	u := notify.NewUpdate(notify.TypeState)
	view := notify.SnapshotView(s)
	u.State = &view
	e.notifier.Publish(u)
}

func (e *Engine) publishContentChanged(channelID, path string) {
	if e.notifier == nil {
		return
	}
	u := notify.NewUpdate(notify.TypeContentChanged)
	u.Channel = channelID
	u.Path = path
	e.notifier.Publish(u)
}
