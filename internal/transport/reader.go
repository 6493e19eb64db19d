package transport

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/danmuck/rpclink/internal/observability"
	"github.com/danmuck/rpclink/internal/protocol/message"
)

func (t *Transport) reading(r *bufio.Reader) {
	defer t.rD.SetDone()
	if err := t.readLoop(r); err != nil {
		t.fail(WorkerReader, err)
	}
}

func (t *Transport) readLoop(r *bufio.Reader) error {
	for {
		msg, err := message.ReadLimits(r, t.limits)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// The owner may close the connection after requesting exit to
			// unblock a read that would otherwise wait on the peer.
			if t.flags.Reader.IsSet() && closedByOwner(err) {
				return nil
			}
			return err
		}

		kind := t.queues.Route(msg)
		t.readCount.Add(1)
		observability.RecordMessageRead(t.name, kind.String())
		observability.SetQueueDepth(t.name, kind.String(), t.queues.Len(kind))

		if t.flags.Reader.IsSet() {
			t.logf("socket write finished.")
			return nil
		}
	}
}

func closedByOwner(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
