package transport

import (
	"context"
	"sync"

	"github.com/danmuck/rpclink/internal/protocol/message"
)

// Sender is the owner's outbound endpoint. Its channel has no buffer, so
// Send returns only once the writer worker has taken the message.
type Sender struct {
	ch        chan message.Message
	closed    chan struct{}
	closeOnce sync.Once
	stopped   <-chan struct{}
}

func newSender(stopped <-chan struct{}) *Sender {
	return &Sender{
		ch:      make(chan message.Message),
		closed:  make(chan struct{}),
		stopped: stopped,
	}
}

func (s *Sender) Send(msg message.Message) error {
	return s.SendContext(context.Background(), msg)
}

// SendContext is Send with a cancellable wait. Cancellation only abandons
// the handoff; a message already taken by the writer is still written.
func (s *Sender) SendContext(ctx context.Context, msg message.Message) error {
	if msg.Kind() == message.KindInvalid {
		return ErrInvalidMessage
	}
	select {
	case <-s.closed:
		return ErrSenderClosed
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.closed:
		return ErrSenderClosed
	case <-s.stopped:
		return ErrWriterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the endpoint. The writer finishes its current message and
// returns; later sends fail with ErrSenderClosed.
func (s *Sender) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *Sender) receive() (message.Message, bool) {
	select {
	case msg := <-s.ch:
		return msg, true
	case <-s.closed:
		return message.Message{}, false
	}
}
