// Package natsbus adapts a NATS connection to the transport.Bus contract.
package natsbus

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/transport"
)

// Options configure the NATS connection.
type Options struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
	Logger        *logging.Logger
}

// Bus is a transport.Bus backed by a NATS connection.
type Bus struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// Connect dials the NATS server with reconnection handling and returns the bus.
func Connect(opts Options) (*Bus, error) {
	if opts.URL == "" {
		return nil, errors.New("nats url must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "cruise-controller"
	}

	//1.- Mirror connection lifecycle events into the structured log.
	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("bus reconnected", logging.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("bus disconnected", logging.Error(err))
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []logging.Field{logging.Error(err)}
			if sub != nil {
				fields = append(fields, logging.String("subject", sub.Subject))
			}
			logger.Error("bus async error", fields...)
		}),
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc, logger: logger}, nil
}

// Publish sends the payload to the subject.
func (b *Bus) Publish(subject string, payload []byte) error {
	if b == nil || b.nc == nil {
		return errors.New("nats bus is not connected")
	}
	return b.nc.Publish(subject, payload)
}

// Subscribe registers a handler for the subject. NATS invokes handlers for a
// single subscription sequentially, preserving arrival order.
func (b *Bus) Subscribe(subject string, handler transport.Handler) (transport.Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, errors.New("nats bus is not connected")
	}
	if subject == "" || handler == nil {
		return nil, errors.New("subject and handler must be provided")
	}
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Close drains in-flight messages and releases the connection.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn("bus drain failed", logging.Error(err))
		b.nc.Close()
	}
}
