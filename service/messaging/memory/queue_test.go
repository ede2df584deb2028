package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fsmflow/service/messaging"
)

type task struct {
	ID    string
	Count int
}

func TestQueue(t *testing.T) {
	queue := NewQueue[task](DefaultConfig())
	ctx := context.Background()

	payload := task{ID: "test-1", Count: 1}
	assert.NoError(t, queue.Publish(ctx, &payload))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.NotEmpty(t, message.ID())
	assert.Equal(t, payload, *message.T())

	assert.NoError(t, message.Ack())
	assert.ErrorIs(t, message.Ack(), ErrProcessed)
	assert.ErrorIs(t, message.Nack(nil), ErrProcessed)
}

func TestQueue_FIFO(t *testing.T) {
	queue := NewQueue[task](DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, queue.Publish(ctx, &task{Count: i}))
	}
	assert.Equal(t, 1000, queue.Size())
	for i := 0; i < 1000; i++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, message.T().Count)
	}
}

func TestQueue_Retries(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[task](config)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, queue.Publish(ctx, &task{ID: "retry"}))
	failure := errors.New("boom")
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, "retry", message.T().ID)
		assert.Equal(t, attempt, message.(*Message[task]).Retries())
		assert.NoError(t, message.Nack(failure))
	}

	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, queue.Size())
	dead := queue.DeadLetters()
	require.Len(t, dead, 1)
	assert.ErrorIs(t, dead[0].Err(), failure)
}

func TestQueue_Concurrency(t *testing.T) {
	queue := NewQueue[task](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	concurrency := 10
	perProducer := 100
	var wg sync.WaitGroup
	var mux sync.Mutex
	seen := map[string]bool{}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				message, err := queue.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, message.Ack())
				mux.Lock()
				seen[message.T().ID] = true
				mux.Unlock()
			}
		}()
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, queue.Publish(ctx, &task{ID: fmt.Sprintf("p%d-m%d", producer, j)}))
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, seen, concurrency*perProducer)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_ContextCancellation(t *testing.T) {
	queue := NewQueue[task](DefaultConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, queue.Publish(cancelled, &task{ID: "test"}), context.Canceled)

	timeout, cancelTimeout := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, queue.Publish(context.Background(), &task{ID: "test"}))
	message, err := queue.Consume(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, message)
}

func TestQueue_Close(t *testing.T) {
	queue := NewQueue[task](DefaultConfig())
	errs := make(chan error, 1)
	go func() {
		_, err := queue.Consume(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, queue.Close())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, messaging.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer was not released")
	}
	assert.ErrorIs(t, queue.Publish(context.Background(), &task{}), messaging.ErrClosed)
	assert.NoError(t, queue.Close())
}
