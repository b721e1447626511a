package natsink

import (
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/config"
	"github.com/viant/watchdb/watch"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher handles publishing change batches to NATS.
type Publisher struct {
	conn      Conn
	closer    func()
	prefix    string
	logger    logrus.FieldLogger
	published atomic.Int64
	failed    atomic.Int64
}

// Connect dials cfg.URL with the configured reconnect policy.
func Connect(cfg config.NATSConfig, logger logrus.FieldLogger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "natsink: failed to connect to NATS")
	}
	logger.WithField("url", cfg.URL).Info("connected to NATS")
	p := New(conn, cfg.SubjectPrefix, logger)
	p.closer = func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	return p, nil
}

// New returns a publisher over an established connection.
func New(conn Conn, prefix string, logger logrus.FieldLogger) *Publisher {
	if prefix == "" {
		prefix = config.DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject batches of collection are published on.
func (p *Publisher) Subject(collection string) string {
	return p.prefix + "." + collection
}

// Publish sends one batch.
func (p *Publisher) Publish(batch watch.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "natsink: failed to marshal batch")
	}
	subject := p.Subject(batch.Collection)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(1)
		return errors.Wrapf(err, "natsink: failed to publish to %s", subject)
	}
	p.published.Add(1)
	p.logger.WithFields(logrus.Fields{"subject": subject, "txn": batch.TxnID, "changes": len(batch.Changes)}).Debug("published batch")
	return nil
}

// Attach registers a detailed watcher per collection that publishes every
// committed batch. Publish failures are logged; they never affect the
// committed transaction.
func (p *Publisher) Attach(registry *watch.Registry, collections ...string) []*watch.Handle {
	handles := make([]*watch.Handle, 0, len(collections))
	for _, collection := range collections {
		handles = append(handles, registry.WatchDetailed(collection, func(batch watch.Batch) {
			if err := p.Publish(batch); err != nil {
				p.logger.WithError(err).Warn("dropped change batch")
			}
		}))
	}
	return handles
}

// Stats returns the number of published and failed batches.
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close drains the connection opened by Connect.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
