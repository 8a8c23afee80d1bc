package listener

import (
	"context"
	"sync"
)

// Listener drains a channel on a single goroutine. Inputs are handled
// strictly one after another, so the handler owns whatever state it touches
// without locking.
type Listener[T any] struct {
	handler     func(input T)
	stopHandler func()

	in     <-chan T
	wg     sync.WaitGroup
	once   sync.Once
	cancel func()
}

func New[T any](
	in <-chan T,
	handler func(T),
	stopHandler ...func(),
) *Listener[T] {
	if len(stopHandler) == 0 {
		stopHandler = []func(){func() {}}
	}

	return &Listener[T]{
		in:          in,
		handler:     handler,
		cancel:      func() {},
		stopHandler: stopHandler[0],
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		for {
			select {
			case inp, ok := <-l.in:
				if !ok {
					return
				}
				l.handler(inp)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop waits for the input being handled, then runs the stop handler once.
// Inputs still queued are never handled.
func (l *Listener[T]) Stop() {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
		l.stopHandler()
	})
}
