package natsctl

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	DefaultPrefix = "simtemp"

	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
	maxReconnects  = -1 // forever
	drainTimeout   = 5 * time.Second

	drainPollInterval = 10 * time.Millisecond
)

// Connect dials url with reconnect handling that logs connection state.
func Connect(url, name string, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.New().Wrap(ErrConnect, err)
	}

	return nc, nil
}

// Serve answers requests on <prefix>.<op> until ctx is done, then drains
// the subscription and waits for in-flight requests. Each request runs in
// its own goroutine so a waiting read does not hold up control calls.
// Requests still queued at shutdown are answered with ctx already done, so
// blocking reads among them report interrupted.
func Serve(ctx context.Context, nc *nats.Conn, prefix string, h *Handler, log logger.Logger) error {
	errFactory := errors.New()
	root := prefix + "."

	var gate requestGate

	sub, err := nc.Subscribe(root+">", func(msg *nats.Msg) {
		op := strings.TrimPrefix(msg.Subject, root)
		if msg.Reply == "" {
			log.Debug().Str("subject", msg.Subject).Msg("Dropping request without reply subject")
			return
		}

		if !gate.enter() {
			log.Debug().Str("op", op).Msg("Dropping request after shutdown")
			return
		}
		go func() {
			defer gate.leave()

			data, err := json.Marshal(h.Handle(ctx, op, msg.Data))
			if err != nil {
				log.Error().Err(err).Str("op", op).Msg("Failed to encode reply")
				return
			}
			if err := msg.Respond(data); err != nil {
				log.Warn().Err(err).Str("op", op).Msg("Failed to send reply")
			}
		}()
	})
	if err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}

	log.Info().Str("subject", sub.Subject).Msg("NATS control binding ready")

	<-ctx.Done()

	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn().Err(err).Msg("Failed to drain control subscription")
	}
	if !waitDrained(sub, drainTimeout) {
		log.Warn().Dur("timeout", drainTimeout).Msg("Control subscription did not drain in time")
	}
	gate.closeAndWait()

	if err := nc.FlushTimeout(drainTimeout); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn().Err(err).Msg("Failed to flush control replies")
	}

	return nil
}

// waitDrained waits for an asynchronous Drain to finish delivering queued
// messages. It reports false if the subscription is still valid at timeout.
func waitDrained(sub *nats.Subscription, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(drainPollInterval)
	}

	return true
}

// requestGate counts in-flight requests. Once closed it admits no more, so
// Add never races with the final Wait.
type requestGate struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (g *requestGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	g.inflight.Add(1)

	return true
}

func (g *requestGate) leave() {
	g.inflight.Done()
}

func (g *requestGate) closeAndWait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.inflight.Wait()
}
