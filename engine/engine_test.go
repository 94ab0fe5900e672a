package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/playout/config"
	"github.com/c360/playout/errors"
	"github.com/c360/playout/notify"
	"github.com/c360/playout/sequencer"
	"github.com/c360/playout/testutil"
	"github.com/c360/playout/wire"
)

func testConfig(t *testing.T, srv *testutil.Server) *config.Config {
	t.Helper()
	host, port := srv.HostPort()
	cfg := &config.Config{
		Platform: config.PlatformConfig{ID: "test"},
		Channels: []config.Channel{{ID: "ch1", Host: host, Port: port, Type: "ticker"}},
		Sequencer: config.SequencerConfig{
			DialTimeout:    time.Second,
			ReconnectDelay: 50 * time.Millisecond,
			FetchTimeout:   2 * time.Second,
			FlushInterval:  2 * time.Millisecond,
			DebounceWindow: 5 * time.Millisecond,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func startEngine(t *testing.T, cfg *config.Config, notifier *notify.Notifier) *Engine {
	t.Helper()
	e := New(cfg, nil, notifier, nil)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop(2 * time.Second) })
	return e
}

func TestEngine_LifecycleAndInitialSequence(t *testing.T) {
	srv := testutil.NewServer(t)
	cfg := testConfig(t, srv)
	e := startEngine(t, cfg, nil)

	got := srv.WaitForMessages(7, 2*time.Second)
	assert.Equal(t, "protocol", got[0].Verb)

	st, ok := e.ChannelStatus("ch1")
	require.True(t, ok)
	assert.Equal(t, sequencer.StatusConnected, st)

	infos := e.Channels()
	require.Len(t, infos, 1)
	assert.Equal(t, "ch1", infos[0].ID)
	assert.Equal(t, "connected", infos[0].Status)
	assert.Equal(t, "ticker", infos[0].Type)

	require.NoError(t, e.Stop(2*time.Second))
}

func TestEngine_DoubleInitializeAndStart(t *testing.T) {
	srv := testutil.NewServer(t)
	e := New(testConfig(t, srv), nil, nil, nil)

	require.Error(t, e.Start(context.Background()))
	require.NoError(t, e.Initialize())
	require.Error(t, e.Initialize())
	require.NoError(t, e.Start(context.Background()))
	require.Error(t, e.Start(context.Background()))
	require.NoError(t, e.Stop(2*time.Second))
}

func TestEngine_NotificationUpdatesState(t *testing.T) {
	srv := testutil.NewServer(t)
	e := startEngine(t, testConfig(t, srv), nil)
	srv.WaitForMessages(7, 2*time.Second)

	srv.Notify("set", "attribute", "/storage/shows/news/entry", "active_lower",
		"/storage/shows/news/elements/e42")

	require.Eventually(t, func() bool {
		return e.IsElementPlaying("/storage/shows/news/elements/e42")
	}, 2*time.Second, 5*time.Millisecond)

	// suffix matching works through the facade too
	assert.True(t, e.IsElementPlaying("e42"))
	assert.False(t, e.IsElementPlaying("e43"))
}

func TestEngine_StatePublishedToNotifier(t *testing.T) {
	srv := testutil.NewServer(t)
	notifier := notify.NewNotifier(nil)
	defer notifier.Close()
	updates, cancel := notifier.Subscribe()
	defer cancel()

	startEngine(t, testConfig(t, srv), notifier)
	srv.WaitForMessages(7, 2*time.Second)

	srv.Notify("set", "attribute", "/storage/shows/news/entry", "active_lower", "e1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Type != notify.TypeState || u.State == nil {
				continue
			}
			require.Len(t, u.State.Playing, 1)
			assert.Equal(t, "e1", u.State.Playing[0].ID)
			assert.Equal(t, "lower", u.State.Playing[0].Feed)
			return
		case <-deadline:
			t.Fatal("no state update published")
		}
	}
}

func TestEngine_InitialQueryRepliesSeedState(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.SetResponder(func(msg wire.Message) []wire.Message {
		if msg.Verb != "get" {
			return nil
		}
		switch msg.Arg(0) {
		case "/config/channels":
			return []wire.Message{{RequestID: msg.RequestID, Verb: "ok",
				Args: []string{"lower /channels/1/handlers/lowerhandler\n"}}}
		case "/storage/shows":
			return []wire.Message{{RequestID: msg.RequestID, Verb: "ok",
				Args: []string{"/storage/shows/news/active_lower /storage/shows/news/elements/e7\n"}}}
		case "/storage/ticker/state":
			return []wire.Message{{RequestID: msg.RequestID, Verb: "ok",
				Args: []string{"/channels/1/state/lower/carousels/headlines/current/L on\n"}}}
		}
		return nil
	})

	e := startEngine(t, testConfig(t, srv), nil)

	require.Eventually(t, func() bool {
		return e.IsElementPlaying("/storage/shows/news/elements/e7")
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		on, ok := e.CarouselState("ch1", "headlines")
		return ok && on
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_DisconnectRemovesChannel(t *testing.T) {
	srv := testutil.NewServer(t)
	e := startEngine(t, testConfig(t, srv), nil)
	srv.WaitForMessages(7, 2*time.Second)

	srv.Notify("set", "attribute", "/storage/shows/news/entry", "active_lower", "e1")
	require.Eventually(t, func() bool { return e.IsElementPlaying("e1") },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Disconnect("ch1"))

	assert.False(t, e.IsElementPlaying("e1"))
	_, ok := e.ChannelStatus("ch1")
	assert.False(t, ok)
	assert.Empty(t, e.Channels())

	err := e.Disconnect("ch1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)
}

func TestEngine_SendCommand(t *testing.T) {
	srv := testutil.NewServer(t)
	e := startEngine(t, testConfig(t, srv), nil)
	srv.WaitForMessages(7, 2*time.Second)

	id, err := e.TriggerAction("ch1", "/storage/shows/news/actions/take")
	require.NoError(t, err)
	assert.Greater(t, id, int64(7))

	got := srv.WaitForMessages(8, 2*time.Second)
	last := got[len(got)-1]
	assert.Equal(t, "schedule", last.Verb)
	assert.Equal(t, "/storage/shows/news/actions/take", last.Arg(0))

	_, err = e.SendCommand("nope", sequencer.Subscribe("/x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)
}

func TestEngine_FetchShowContent(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.SetResponder(func(msg wire.Message) []wire.Message {
		if msg.Verb == "get" && msg.Arg(0) == "/storage/shows/news" {
			assert.Equal(t, "6", msg.Arg(1))
			return []wire.Message{{RequestID: msg.RequestID, Verb: "ok", Args: []string{"tree"}}}
		}
		return nil
	})

	e := startEngine(t, testConfig(t, srv), nil)

	content, err := e.FetchShowContent(context.Background(), "ch1", "/storage/shows/news")
	require.NoError(t, err)
	assert.Equal(t, "tree", string(content))
}

func TestEngine_HealthFollowsConnection(t *testing.T) {
	srv := testutil.NewServer(t)
	e := startEngine(t, testConfig(t, srv), nil)
	srv.WaitForMessages(7, 2*time.Second)

	require.Eventually(t, func() bool {
		st := e.Health()
		c, ok := st.Components["channel:ch1"]
		return ok && c.State == "healthy"
	}, 2*time.Second, 5*time.Millisecond)

	srv.DropClient()
	require.Eventually(t, func() bool {
		return e.Health().State != "healthy"
	}, 2*time.Second, 5*time.Millisecond)
}
