package transport

import (
	"errors"
	"fmt"
)

const (
	WorkerReader = "reader"
	WorkerWriter = "writer"
)

var (
	ErrSenderClosed   = errors.New("transport: sender closed")
	ErrWriterStopped  = errors.New("transport: writer stopped")
	ErrInvalidMessage = errors.New("transport: message must hold exactly one kind")
	ErrNilConn        = errors.New("transport: nil connection")
)

// WorkerError is the fatal error that terminated a worker.
type WorkerError struct {
	Worker string
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("transport: %s worker: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
