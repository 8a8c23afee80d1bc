package listener

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_HandlesInputsInOrder(t *testing.T) {
	in := make(chan int, 16)
	var got []int
	done := make(chan struct{})

	l := New(in, func(v int) {
		got = append(got, v)
		if v == 9 {
			close(done)
		}
	})
	l.Start(context.Background())
	defer l.Stop()

	for i := 0; i < 10; i++ {
		in <- i
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not drain the channel")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestListener_StopRunsHandlerOnce(t *testing.T) {
	var stops atomic.Int32
	l := New(make(chan int), func(int) {}, func() { stops.Add(1) })
	l.Start(context.Background())

	l.Stop()
	l.Stop()
	require.Equal(t, int32(1), stops.Load())
}

func TestListener_StopsOnClosedChannel(t *testing.T) {
	in := make(chan int)
	l := New(in, func(int) {})
	l.Start(context.Background())
	close(in)

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after input channel was closed")
	}
}
