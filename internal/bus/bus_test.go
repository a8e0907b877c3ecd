package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEvent struct{ name string }

func (e testEvent) Type() string { return e.name }

func TestEmitInvokesHandlersInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		b.On("attempt", func(ctx context.Context, evt Event) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, b.Emit(context.Background(), testEvent{"attempt"}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitWithoutHandlers(t *testing.T) {
	b := New()
	assert.NoError(t, b.Emit(context.Background(), testEvent{"nobody-listens"}))
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	var calls []string
	b.On("evt", func(ctx context.Context, evt Event) error {
		calls = append(calls, "keep")
		return nil
	})
	off := b.On("evt", func(ctx context.Context, evt Event) error {
		calls = append(calls, "drop")
		return nil
	})

	require.NoError(t, b.Emit(context.Background(), testEvent{"evt"}))
	off()
	off() // idempotent
	require.NoError(t, b.Emit(context.Background(), testEvent{"evt"}))

	assert.Equal(t, []string{"keep", "drop", "keep"}, calls)
	assert.Equal(t, 1, b.HandlerCount("evt"))
}

func TestEmitAggregatesHandlerErrors(t *testing.T) {
	b := New()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0
	b.On("evt", func(ctx context.Context, evt Event) error { ran++; return errA })
	b.On("evt", func(ctx context.Context, evt Event) error { ran++; return errB })
	b.On("evt", func(ctx context.Context, evt Event) error { ran++; return nil })

	err := b.Emit(context.Background(), testEvent{"evt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 3, ran, "an error must not stop later handlers")
}

func TestEmitStopsOnCancelledContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ran := 0
	b.On("evt", func(ctx context.Context, evt Event) error {
		ran++
		cancel()
		return nil
	})
	b.On("evt", func(ctx context.Context, evt Event) error {
		ran++
		return nil
	})

	err := b.Emit(ctx, testEvent{"evt"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ran, "remaining handlers skipped after cancellation")
}

func TestHandlerMayEmitFollowUpEvent(t *testing.T) {
	b := New()
	var order []string
	b.On("first", func(ctx context.Context, evt Event) error {
		order = append(order, "first")
		return b.Emit(ctx, testEvent{"second"})
	})
	b.On("second", func(ctx context.Context, evt Event) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, b.Emit(context.Background(), testEvent{"first"}))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestConcurrentEmitsAreSerialized(t *testing.T) {
	b := New()
	var inFlight atomic.Int32
	var overlapped atomic.Bool
	b.On("evt", func(ctx context.Context, evt Event) error {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		inFlight.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Emit(context.Background(), testEvent{"evt"})
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlapped.Load(), "handlers from concurrent emits must not interleave")
}
