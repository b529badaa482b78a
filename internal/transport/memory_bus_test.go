// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vaultembed/internal/metrics"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus()
	sub := b.Subscribe("conn/x/to_host")
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "conn/x/to_host", Envelope{Payload: []byte("m")}))
	}

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("to_host", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, "conn/x/to_host", Envelope{Payload: []byte("blocked")})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("to_host", "timeout"))
	require.Greater(t, final, initial, "expected reasoned bus drop counter to increase")
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", Envelope{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusPublishWithoutSubscriber(t *testing.T) {
	b := NewMemoryBus()
	err := b.Publish(context.Background(), "conn/y/to_frame", Envelope{})
	require.ErrorIs(t, err, ErrNoSubscriber)
}

func TestMemoryBusCloseReleasesBlockedPublisher(t *testing.T) {
	b := NewMemoryBus()
	sub := b.Subscribe("conn/z/to_frame")
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "conn/z/to_frame", Envelope{}))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		errCh <- b.Publish(context.Background(), "conn/z/to_frame", Envelope{})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())
	wg.Wait()
	require.ErrorIs(t, <-errCh, ErrClosed)

	// Drained channel is closed after Close.
	for range sub.C() {
	}
}

func TestMemoryBusPreservesOrder(t *testing.T) {
	b := NewMemoryBus()
	sub := b.Subscribe("t/to_host")
	defer sub.Close()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(context.Background(), "t/to_host", Envelope{Payload: []byte(p)}))
	}
	for _, want := range []string{"a", "b", "c"} {
		env := <-sub.C()
		require.Equal(t, want, string(env.Payload))
	}
}

func TestMemoryBusBlockedPublisherDoesNotStallOtherTopics(t *testing.T) {
	b := NewMemoryBus()
	slow := b.Subscribe("conn/slow/to_frame")
	for i := 0; i < cap(slow.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "conn/slow/to_frame", Envelope{}))
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- b.Publish(context.Background(), "conn/slow/to_frame", Envelope{})
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		other := b.Subscribe("conn/fast/to_host")
		require.NoError(t, b.Publish(context.Background(), "conn/fast/to_host", Envelope{Payload: []byte("ok")}))
		env := <-other.C()
		require.Equal(t, "ok", string(env.Payload))
		require.NoError(t, other.Close())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe and publish on another topic stalled behind a blocked publisher")
	}

	require.NoError(t, slow.Close())
	require.ErrorIs(t, <-blocked, ErrClosed)
}
