package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/playout/config"
	"github.com/c360/playout/errors"
	"github.com/c360/playout/pkg/retry"
)

// NATSPublisher bridges a Notifier subscription onto NATS subjects so other
// platform services can follow playout state without speaking the sequencer
// protocol.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	cancel  func()
	stopped chan struct{}
}

// NewNATSPublisher connects to the broker and starts forwarding updates from
// notifier until Close is called.
func NewNATSPublisher(cfg config.NATSConfig, notifier *Notifier, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var nc *nats.Conn
	err := retry.Do(context.Background(), retry.Dial(), func() error {
		var err error
		nc, err = nats.Connect(cfg.URL,
			nats.Name("playout-notify"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "notify", "NewNATSPublisher", "connect "+cfg.URL)
	}

	updates, cancel := notifier.Subscribe()
	p := &NATSPublisher{
		nc:      nc,
		prefix:  cfg.SubjectPrefix,
		logger:  logger.With("component", "nats-publisher"),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go p.forward(updates)
	return p, nil
}

func (p *NATSPublisher) forward(updates <-chan Update) {
	defer close(p.stopped)

	for u := range updates {
		raw, err := json.Marshal(u)
		if err != nil {
			p.logger.Error("marshal update", "type", u.Type, "error", err)
			continue
		}
		if err := p.nc.Publish(p.subject(u), raw); err != nil {
			p.logger.Warn("publish update", "type", u.Type, "error", err)
		}
	}
}

// subject builds "<prefix>.<type>" or "<prefix>.<type>.<channel>".
func (p *NATSPublisher) subject(u Update) string {
	s := p.prefix + "." + u.Type
	if u.Channel != "" {
		s += "." + u.Channel
	}
	return s
}

// Close stops forwarding, flushes and drops the broker connection.
func (p *NATSPublisher) Close() {
	p.cancel()
	select {
	case <-p.stopped:
	case <-time.After(2 * time.Second):
	}
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn("flush on close", "error", err)
	}
	p.nc.Close()
}
