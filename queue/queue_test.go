package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestPopWaitsForPush(t *testing.T) {
	q := New[string]()
	done := make(chan string)
	go func() {
		v, _ := q.Pop(context.Background())
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	assert.False(t, q.Push(2))

	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManyProducers(t *testing.T) {
	q := New[int]()
	const producers, each = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(i)
			}
		}()
	}

	got := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for got < producers*each {
		_, err := q.Pop(ctx)
		require.NoError(t, err)
		got++
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
