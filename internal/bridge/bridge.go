// Package bridge runs the typed request/response protocol between the agent
// and the wallet provider script living in the page context.
//
// Transport is asynchronous and unordered; correlation is by message kind,
// with at most one exchange in flight per kind. Requests issued before the
// provider script announces readiness are buffered in a bounded queue and
// flushed in order once the ready signal arrives.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/amplifylabs/amplify-agent/internal/metrics"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Transport delivers an outgoing message into the page context.
type Transport interface {
	Post(msg types.BridgeMessage) error
}

// Options tune bridge behavior.
type Options struct {
	QueueSize      int           // Pre-ready buffer capacity
	RequestTimeout time.Duration // Per-exchange response deadline
	// OnProgress receives non-terminal updates (e.g. a pending
	// transaction) for the exchange they belong to. Optional.
	OnProgress func(types.BridgeMessage)
}

const (
	defaultQueueSize      = 16
	defaultRequestTimeout = 30 * time.Second
)

type call struct {
	ch chan types.BridgeMessage
}

// Bridge correlates outgoing requests with relayed responses.
type Bridge struct {
	transport Transport
	opts      Options

	mu       sync.Mutex
	ready    bool
	closed   bool
	readyCh  chan struct{}
	queue    []types.BridgeMessage
	inflight map[string]*call
}

// New creates a bridge over the given transport.
func New(transport Transport, opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Bridge{
		transport: transport,
		opts:      opts,
		readyCh:   make(chan struct{}),
		inflight:  make(map[string]*call),
	}
}

// Ready reports whether the provider script has announced itself.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// WaitReady blocks until the provider script announces readiness or the
// context expires.
func (b *Bridge) WaitReady(ctx context.Context) error {
	select {
	case <-b.readyCh:
		return nil
	case <-ctx.Done():
		return types.ErrBridgeNotReady
	}
}

// Call posts a request and blocks until its terminal response, the context
// expires, or the per-exchange timeout fires. A second Call with the same
// message kind while one is outstanding fails immediately. Before the
// bridge is ready the outgoing message is queued rather than posted.
func (b *Bridge) Call(ctx context.Context, msg types.BridgeMessage) (types.BridgeMessage, error) {
	var zero types.BridgeMessage

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return zero, types.ErrBridgeClosed
	}
	if _, dup := b.inflight[msg.Type]; dup {
		b.mu.Unlock()
		return zero, types.NewBridgeInFlightError(msg.Type)
	}
	c := &call{ch: make(chan types.BridgeMessage, 4)}
	b.inflight[msg.Type] = c

	if b.ready {
		b.mu.Unlock()
		if err := b.transport.Post(msg); err != nil {
			b.drop(msg.Type)
			metrics.RecordBridgeRequest(msg.Type, "error")
			return zero, err
		}
	} else {
		if len(b.queue) >= b.opts.QueueSize {
			delete(b.inflight, msg.Type)
			b.mu.Unlock()
			return zero, types.ErrQueueFull
		}
		b.queue = append(b.queue, msg)
		b.mu.Unlock()
		log.Debug().Str("kind", msg.Type).Msg("Bridge not ready, request queued")
	}

	timer := time.NewTimer(b.opts.RequestTimeout)
	defer timer.Stop()

	for {
		select {
		case resp, ok := <-c.ch:
			if !ok {
				metrics.RecordBridgeRequest(msg.Type, "closed")
				return zero, types.ErrBridgeClosed
			}
			if terminal[resp.Type] {
				b.drop(msg.Type)
				metrics.RecordBridgeRequest(msg.Type, "ok")
				return resp, nil
			}
			if b.opts.OnProgress != nil {
				b.opts.OnProgress(resp)
			}
		case <-ctx.Done():
			b.drop(msg.Type)
			metrics.RecordBridgeRequest(msg.Type, "canceled")
			return zero, ctx.Err()
		case <-timer.C:
			b.drop(msg.Type)
			metrics.RecordBridgeRequest(msg.Type, "timeout")
			return zero, types.NewBridgeTimeoutError(msg.Type)
		}
	}
}

// HandleIncoming consumes one relayed payload. It is fed by the page-side
// relay through an exposed binding and never fails: foreign messages are
// dropped silently, malformed or unmatched ones with a debug line.
func (b *Bridge) HandleIncoming(raw gson.JSON) {
	msg, err := Decode(raw)
	if err != nil {
		if !errors.Is(err, types.ErrForeignMessage) {
			log.Debug().Err(err).Msg("Dropping undecodable bridge payload")
		}
		return
	}

	if msg.Type == types.MsgInjectReady {
		b.markReady()
		return
	}

	kind, ok := responseKind[msg.Type]
	if !ok {
		// Our own requests echo back through the relay.
		return
	}

	b.mu.Lock()
	c := b.inflight[kind]
	b.mu.Unlock()
	if c == nil {
		log.Debug().Str("type", msg.Type).Msg("Bridge response without a waiting exchange")
		return
	}

	select {
	case c.ch <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("Bridge response dropped, waiter backlog full")
	}
}

// Close fails every outstanding and future exchange. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	for kind, c := range b.inflight {
		close(c.ch)
		delete(b.inflight, kind)
	}
}

func (b *Bridge) markReady() {
	b.mu.Lock()
	if b.ready || b.closed {
		b.mu.Unlock()
		return
	}
	b.ready = true
	close(b.readyCh)
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	log.Info().Int("queued", len(queued)).Msg("Provider script ready")
	for _, msg := range queued {
		if err := b.transport.Post(msg); err != nil {
			log.Warn().Err(err).Str("kind", msg.Type).Msg("Failed to flush queued bridge request")
			b.mu.Lock()
			c := b.inflight[msg.Type]
			b.mu.Unlock()
			if c != nil {
				b.drop(msg.Type)
				close(c.ch)
			}
		}
	}
}

func (b *Bridge) drop(kind string) {
	b.mu.Lock()
	delete(b.inflight, kind)
	b.mu.Unlock()
}
