package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rpclink/internal/protocol/frame"
	"github.com/danmuck/rpclink/internal/protocol/message"
	"github.com/danmuck/rpclink/internal/protocol/queue"
	"github.com/danmuck/rpclink/internal/testutil/testlog"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) count(line string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if l == line {
			n++
		}
	}
	return n
}

type harness struct {
	tr     *Transport
	peer   net.Conn
	local  net.Conn
	queues *queue.Classified
	flags  *Flags
	logs   *lineRecorder
}

func startHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	local, peer := net.Pipe()
	h := &harness{
		peer:   peer,
		local:  local,
		queues: queue.NewClassified(),
		flags:  NewFlags(),
		logs:   &lineRecorder{},
	}
	opts = append([]Option{WithName(t.Name()), WithLogger(h.logs.log)}, opts...)
	tr, err := Start(local, h.queues, h.flags, opts...)
	if err != nil {
		t.Fatalf("start transport: %v", err)
	}
	h.tr = tr
	t.Cleanup(func() {
		tr.Sender().Close()
		_ = peer.Close()
		_ = local.Close()
	})
	return h
}

// peerSend writes msgs from the peer side without blocking the test.
func (h *harness) peerSend(msgs ...message.Message) {
	go func() {
		for _, m := range msgs {
			if err := m.Write(h.peer); err != nil {
				return
			}
		}
	}()
}

// peerCollect decodes everything the transport writes until the peer closes.
func (h *harness) peerCollect() <-chan message.Message {
	out := make(chan message.Message, 64)
	go func() {
		defer close(out)
		r := bufio.NewReader(h.peer)
		for {
			msg, err := message.Read(r)
			if err != nil {
				return
			}
			out <- msg
		}
	}()
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func joinWithin(t *testing.T, tr *Transport) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- tr.Join() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("join did not return")
		return nil
	}
}

func req(id int64, method string) message.Message {
	return message.FromRequest(message.Request{ID: message.IntID(id), Method: method})
}

func note(method string) message.Message {
	return message.FromNotification(message.Notification{Method: method})
}

func resp(id int64) message.Message {
	return message.FromResponse(message.Response{ID: message.IntID(id)})
}

func TestStartRejectsNilConn(t *testing.T) {
	testlog.Start(t)

	if _, err := Start(nil, nil, nil); !errors.Is(err, ErrNilConn) {
		t.Fatalf("expected ErrNilConn, got %v", err)
	}
}

func TestReaderRoutesMixedKinds(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	h.peerSend(req(1, "initialize"), note("ping"), resp(2))
	eventually(t, "three routed messages", func() bool {
		return h.tr.Statistics().ReadCount == 3
	})

	r, ok := h.queues.Requests.PopFront()
	if !ok || r.ID != message.IntID(1) || h.queues.Requests.Len() != 0 {
		t.Fatalf("unexpected requests queue: %+v ok=%v", r, ok)
	}
	n, ok := h.queues.Notifications.PopFront()
	if !ok || n.Method != "ping" || h.queues.Notifications.Len() != 0 {
		t.Fatalf("unexpected notifications queue: %+v ok=%v", n, ok)
	}
	p, ok := h.queues.Responses.PopFront()
	if !ok || p.ID != message.IntID(2) || h.queues.Responses.Len() != 0 {
		t.Fatalf("unexpected responses queue: %+v ok=%v", p, ok)
	}

	_ = h.peer.Close()
	h.tr.Sender().Close()
	if err := joinWithin(t, h.tr); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestReaderPreservesOrderPerKind(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	var msgs []message.Message
	for i := int64(0); i < 60; i++ {
		switch i % 3 {
		case 0:
			msgs = append(msgs, req(i, "m"))
		case 1:
			msgs = append(msgs, note(fmt.Sprintf("n%d", i)))
		default:
			msgs = append(msgs, resp(i))
		}
	}
	h.peerSend(msgs...)
	eventually(t, "all messages routed", func() bool {
		return h.tr.Statistics().ReadCount == int64(len(msgs))
	})

	reqs := h.queues.Requests.Drain()
	notes := h.queues.Notifications.Drain()
	resps := h.queues.Responses.Drain()
	if len(reqs) != 20 || len(notes) != 20 || len(resps) != 20 {
		t.Fatalf("unexpected split: %d/%d/%d", len(reqs), len(notes), len(resps))
	}
	for i := 0; i < 20; i++ {
		if reqs[i].ID != message.IntID(int64(i*3)) {
			t.Fatalf("request %d out of order: %s", i, reqs[i].ID)
		}
		if notes[i].Method != fmt.Sprintf("n%d", i*3+1) {
			t.Fatalf("notification %d out of order: %s", i, notes[i].Method)
		}
		if resps[i].ID != message.IntID(int64(i*3+2)) {
			t.Fatalf("response %d out of order: %s", i, resps[i].ID)
		}
	}
}

func TestReaderEmptyStreamTerminatesCleanly(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	_ = h.peer.Close()
	eventually(t, "reader stop", h.tr.ReaderStopped)
	if h.tr.WriterStopped() {
		t.Fatalf("writer must keep running until the sender is closed")
	}

	h.tr.Sender().Close()
	if err := joinWithin(t, h.tr); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, kind := range message.Kinds() {
		if n := h.queues.Len(kind); n != 0 {
			t.Fatalf("expected empty %s queue, got %d", kind, n)
		}
	}
}

func TestReaderMalformedBytesSurfaceDecodeError(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	h.peerSend(req(1, "initialize"))
	eventually(t, "valid request routed", func() bool {
		return h.queues.Requests.Len() == 1
	})
	go func() {
		_, _ = io.WriteString(h.peer, "this is not a header\r\n\r\n")
	}()
	eventually(t, "reader abort", h.tr.ReaderStopped)

	h.tr.Sender().Close()
	err := joinWithin(t, h.tr)
	var werr *WorkerError
	if !errors.As(err, &werr) || werr.Worker != WorkerReader {
		t.Fatalf("expected reader WorkerError, got %v", err)
	}
	if !errors.Is(err, message.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if h.queues.Requests.Len() != 1 {
		t.Fatalf("validly routed message must be retained")
	}
	if err := h.tr.Join(); err != werr {
		t.Fatalf("second join must report the same error, got %v", err)
	}
}

func TestReaderAbortsOnPayloadAboveLimits(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t, WithLimits(frame.Limits{MaxHeaderBytes: 256, MaxPayloadBytes: 48}))

	h.peerSend(note("a"))
	eventually(t, "small notification routed", func() bool {
		return h.queues.Notifications.Len() == 1
	})
	h.peerSend(note("a-method-name-that-pushes-the-payload-past-the-limit"))
	eventually(t, "reader abort", h.tr.ReaderStopped)

	h.tr.Sender().Close()
	err := joinWithin(t, h.tr)
	var werr *WorkerError
	if !errors.As(err, &werr) || werr.Worker != WorkerReader {
		t.Fatalf("expected reader WorkerError, got %v", err)
	}
	if !errors.Is(err, message.ErrDecode) || !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrDecode wrapping ErrPayloadTooLarge, got %v", err)
	}
	if h.queues.Notifications.Len() != 1 {
		t.Fatalf("message routed before the oversized frame must be retained")
	}
}

func TestReaderStopsAfterFlagWithOneMoreMessage(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	h.flags.SetReaderExit()
	h.peerSend(note("first"), note("second"))
	eventually(t, "reader stop", h.tr.ReaderStopped)

	if got := h.queues.Notifications.Len(); got != 1 {
		t.Fatalf("expected exactly one routed message after flag, got %d", got)
	}
	n, _ := h.queues.Notifications.PopFront()
	if n.Method != "first" {
		t.Fatalf("unexpected routed message: %q", n.Method)
	}
	if h.logs.count("socket write finished.") != 1 {
		t.Fatalf("expected reader exit log line")
	}
}

func TestReaderTreatsOwnerCloseAfterFlagAsExit(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	h.flags.SetReaderExit()
	_ = h.local.Close()
	eventually(t, "reader stop", h.tr.ReaderStopped)

	h.tr.Sender().Close()
	if err := joinWithin(t, h.tr); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestWriterWritesInSendOrder(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)
	got := h.peerCollect()

	const n = 10
	for i := 0; i < n; i++ {
		if err := h.tr.Sender().Send(req(int64(i), "work")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		select {
		case msg := <-got:
			if msg.Kind() != message.KindRequest || msg.Request.ID != message.IntID(int64(i)) {
				t.Fatalf("message %d out of order: %s", i, msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	eventually(t, "written count", func() bool {
		return h.tr.Statistics().WrittenCount == n
	})
	if h.tr.Statistics().DiscardedCount != 0 {
		t.Fatalf("unexpected discards")
	}
}

func TestWriterFlagDiscardsLaterSends(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)
	got := h.peerCollect()

	if err := h.tr.Sender().Send(req(5, "work")); err != nil {
		t.Fatalf("send request: %v", err)
	}
	select {
	case msg := <-got:
		if msg.Request == nil || msg.Request.ID != message.IntID(5) {
			t.Fatalf("unexpected message: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for request")
	}

	h.flags.SetWriterExit()
	if err := h.tr.Sender().Send(note("x")); err != nil {
		t.Fatalf("send after flag: %v", err)
	}
	eventually(t, "discard", func() bool {
		return h.tr.Statistics().DiscardedCount == 1
	})

	_ = h.peer.Close()
	if err := h.tr.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for msg := range got {
		t.Fatalf("unexpected bytes after writer flag: %s", msg)
	}
	if h.tr.Statistics().WrittenCount != 1 {
		t.Fatalf("expected one write, got %d", h.tr.Statistics().WrittenCount)
	}
	if h.logs.count("stdio write finished.") != 1 {
		t.Fatalf("expected writer discard log line")
	}
}

func TestWriterKeepsConsumingWhileFlagged(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	h.flags.SetWriterExit()
	for i := 0; i < 3; i++ {
		if err := h.tr.Sender().Send(note("drop")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	eventually(t, "three discards", func() bool {
		return h.tr.Statistics().DiscardedCount == 3
	})
	if h.tr.WriterStopped() {
		t.Fatalf("flag alone must not stop the writer")
	}

	h.tr.Sender().Close()
	eventually(t, "writer stop", h.tr.WriterStopped)
	if err := h.tr.Sender().Send(note("late")); !errors.Is(err, ErrSenderClosed) {
		t.Fatalf("expected ErrSenderClosed, got %v", err)
	}
}

func TestSenderRejectsInvalidMessage(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	if err := h.tr.Sender().Send(message.Message{}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestSendContextAbandonsWaitOnly(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	// Nobody reads the peer end, so the writer blocks inside the first write.
	if err := h.tr.Sender().Send(req(1, "stuck")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.tr.Sender().SendContext(ctx, req(2, "waiting")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	got := h.peerCollect()
	select {
	case msg := <-got:
		if msg.Request == nil || msg.Request.ID != message.IntID(1) {
			t.Fatalf("unexpected message: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight write was not completed")
	}
}

type failingConn struct {
	io.Reader
}

func (failingConn) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestWriterErrorIsFatalAndSurfacedByJoin(t *testing.T) {
	testlog.Start(t)
	local, peer := net.Pipe()
	defer local.Close()

	tr, err := Start(failingConn{Reader: local}, nil, nil, WithName(t.Name()))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Sender().Send(note("boom")); err != nil {
		t.Fatalf("send: %v", err)
	}
	eventually(t, "writer abort", tr.WriterStopped)
	if err := tr.Sender().Send(note("after")); !errors.Is(err, ErrWriterStopped) {
		t.Fatalf("expected ErrWriterStopped, got %v", err)
	}

	_ = peer.Close()
	err = joinWithin(t, tr)
	var werr *WorkerError
	if !errors.As(err, &werr) || werr.Worker != WorkerWriter {
		t.Fatalf("expected writer WorkerError, got %v", err)
	}
	if !errors.Is(err, message.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestShutdownWaitsForReaderPollPoint(t *testing.T) {
	testlog.Start(t)
	h := startHarness(t)

	done := make(chan error, 1)
	go func() { done <- h.tr.Shutdown() }()

	eventually(t, "writer stop", h.tr.WriterStopped)
	select {
	case err := <-done:
		t.Fatalf("shutdown returned before the reader reached a poll point: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	h.peerSend(note("wake"))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not complete")
	}
	if h.queues.Notifications.Len() != 1 {
		t.Fatalf("message decoded before exit must be kept")
	}
	if !h.tr.Stopped() {
		t.Fatalf("expected transport stopped")
	}
}
