// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/metrics"
)

// MemoryBus is an in-memory pub/sub used by the in-process transport.
// It is not durable; delivery is in-order per topic while publish contexts remain active.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

const (
	dropLogEvery  = 100
	subscriberBuf = 64
)

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*Subscription)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// topicDirection keeps session-scoped topic names out of metric labels.
func topicDirection(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return "unknown"
}

func (b *MemoryBus) recordDrop(topic, reason string) {
	metrics.IncBusDropReason(topicDirection(topic), reason)
	count := dropCount.Add(1)
	if count%dropLogEvery == 0 {
		log.L().Warn().
			Str("direction", topicDirection(topic)).
			Str(log.FieldReason, reason).
			Uint64("dropped", count).
			Msg("memory bus dropped envelopes")
	}
}

// Publish hands env to every subscriber of topic. It works on a snapshot of
// the subscriber list, so a slow subscriber never blocks Subscribe or Close.
func (b *MemoryBus) Publish(ctx context.Context, topic string, env Envelope) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.recordDrop(topic, "no_subscriber")
		return fmt.Errorf("publish topic %q: %w", topic, ErrNoSubscriber)
	}
	for _, s := range subs {
		if err := s.deliver(ctx, env); err != nil {
			if errors.Is(err, ErrClosed) {
				b.recordDrop(topic, "closed")
			} else {
				b.recordDrop(topic, publishDropReason(err))
			}
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber on topic.
func (b *MemoryBus) Subscribe(topic string) *Subscription {
	s := &Subscription{b: b, topic: topic, ch: make(chan Envelope, subscriberBuf), done: make(chan struct{})}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s
}

// Subscription receives envelopes published on one topic.
type Subscription struct {
	b     *MemoryBus
	topic string
	ch    chan Envelope
	done  chan struct{}
	once  sync.Once

	// sendMu is held shared by deliveries and exclusively by Close before ch is closed.
	sendMu sync.RWMutex
}

func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

func (s *Subscription) deliver(ctx context.Context, env Envelope) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- env:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		// Release blocked deliveries, then wait for them before closing ch.
		close(s.done)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()

		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		// Copy on write: publishers may still range over the old slice.
		lst := s.b.subs[s.topic]
		out := make([]*Subscription, 0, len(lst))
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
	})
	return nil
}
