package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine to the pull-style Stream interface.
type eventStream struct {
	events    <-chan Event
	done      chan struct{}
	cancel    context.CancelFunc
	err       error
	closeOnce sync.Once
}

// newEventStream starts run in a goroutine. run sends events on the channel
// and returns nil on a clean finish; a non-nil error is surfaced by Recv
// after all sent events have been drained.
func newEventStream(ctx context.Context, run func(ctx context.Context, events chan<- Event) error) *eventStream {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	s := &eventStream{
		events: events,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		err := run(ctx, events)
		// err must be visible before the channel close that Recv observes.
		s.err = err
		close(events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	ev, ok := <-s.events
	if ok {
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

// Close cancels the producer and waits for it to exit.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so a producer blocked on send can observe cancellation.
		go func() {
			for range s.events {
			}
		}()
		<-s.done
	})
	return nil
}

// send delivers ev unless ctx is cancelled first.
func send(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
