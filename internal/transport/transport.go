package transport

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/rpclink/internal/observability"
	"github.com/danmuck/rpclink/internal/protocol/frame"
	"github.com/danmuck/rpclink/internal/protocol/queue"
	"github.com/someonegg/gox/syncx"
)

const DefaultName = "link"

// Conn is the byte-stream connection. net.Conn qualifies: it allows one
// concurrent reader and one concurrent writer.
type Conn interface {
	io.Reader
	io.Writer
}

type Option func(*Transport)

// WithName labels log lines and metrics.
func WithName(name string) Option {
	return func(t *Transport) {
		if name = strings.TrimSpace(name); name != "" {
			t.name = name
		}
	}
}

// WithLogger replaces the diagnostic line sink.
func WithLogger(logf func(string)) Option {
	return func(t *Transport) {
		if logf != nil {
			t.logf = logf
		}
	}
}

func WithLimits(limits frame.Limits) Option {
	return func(t *Transport) {
		t.limits = limits
	}
}

type Statistics struct {
	ReadCount      int64
	WrittenCount   int64
	DiscardedCount int64
}

// Transport is the running pair of workers over one connection.
type Transport struct {
	name   string
	logf   func(string)
	limits frame.Limits

	queues *queue.Classified
	flags  *Flags
	sender *Sender

	rD    syncx.DoneChan
	wD    syncx.DoneChan
	stopD syncx.DoneChan

	errMu sync.Mutex
	err   error

	readCount      atomic.Int64
	writtenCount   atomic.Int64
	discardedCount atomic.Int64
}

// Start wires conn, the owner's queues and flags into a running transport.
// Each worker gets its own buffered handle over conn.
func Start(conn Conn, queues *queue.Classified, flags *Flags, opts ...Option) (*Transport, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if queues == nil {
		queues = queue.NewClassified()
	}
	if flags == nil {
		flags = NewFlags()
	}
	t := &Transport{
		name:   DefaultName,
		limits: frame.DefaultLimits(),
		queues: queues,
		flags:  flags,
		rD:     syncx.NewDoneChan(),
		wD:     syncx.NewDoneChan(),
		stopD:  syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logf == nil {
		t.logf = observability.LineLogger("transport." + t.name)
	}
	t.sender = newSender(t.wD)

	go t.reading(bufio.NewReader(conn))
	go t.writing(bufio.NewWriter(conn))
	go t.monitor()
	return t, nil
}

func (t *Transport) Name() string {
	return t.name
}

func (t *Transport) Sender() *Sender {
	return t.sender
}

func (t *Transport) Queues() *queue.Classified {
	return t.queues
}

func (t *Transport) Flags() *Flags {
	return t.flags
}

// Join blocks until both workers have returned and reports the first fatal
// worker error, if any.
func (t *Transport) Join() error {
	<-t.stopD
	return t.Err()
}

// Shutdown sets both exit flags, closes the sender and joins. The reader
// still needs one more inbound message or end-of-stream to observe its flag.
func (t *Transport) Shutdown() error {
	t.flags.SetReaderExit()
	t.flags.SetWriterExit()
	t.sender.Close()
	return t.Join()
}

// StopD is signalled once both workers have returned.
func (t *Transport) StopD() syncx.DoneChanR {
	return t.stopD.R()
}

// ReaderStopD is signalled once the reader worker has returned.
func (t *Transport) ReaderStopD() syncx.DoneChanR {
	return t.rD.R()
}

func (t *Transport) WriterStopD() syncx.DoneChanR {
	return t.wD.R()
}

func (t *Transport) Stopped() bool {
	return t.stopD.R().Done()
}

func (t *Transport) ReaderStopped() bool {
	return t.rD.R().Done()
}

func (t *Transport) WriterStopped() bool {
	return t.wD.R().Done()
}

// Err returns the first fatal worker error recorded so far.
func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Transport) Statistics() Statistics {
	return Statistics{
		ReadCount:      t.readCount.Load(),
		WrittenCount:   t.writtenCount.Load(),
		DiscardedCount: t.discardedCount.Load(),
	}
}

func (t *Transport) fail(worker string, err error) {
	observability.RecordWorkerError(t.name, worker)
	t.logf(worker + " aborted: " + err.Error())
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = &WorkerError{Worker: worker, Err: err}
	}
}

func (t *Transport) monitor() {
	<-t.rD
	<-t.wD
	t.stopD.SetDone()
}
