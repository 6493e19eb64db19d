package transport

import (
	"bufio"
	"fmt"

	"github.com/danmuck/rpclink/internal/observability"
	"github.com/danmuck/rpclink/internal/protocol/message"
)

func (t *Transport) writing(w *bufio.Writer) {
	defer t.wD.SetDone()
	if err := t.writeLoop(w); err != nil {
		t.fail(WorkerWriter, err)
	}
}

func (t *Transport) writeLoop(w *bufio.Writer) error {
	for {
		msg, ok := t.sender.receive()
		if !ok {
			return nil
		}

		if t.flags.Writer.IsSet() {
			t.logf("stdio write finished.")
			t.discardedCount.Add(1)
			observability.RecordMessageDiscarded(t.name, msg.Kind().String())
			continue
		}

		t.logf("stdio write " + msg.String())
		if err := msg.WriteLimits(w, t.limits); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("%w: %w", message.ErrWrite, err)
		}
		t.writtenCount.Add(1)
		observability.RecordMessageWritten(t.name, msg.Kind().String())
	}
}
