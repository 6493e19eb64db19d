package transport

import "sync"

// Flag is an advisory exit flag polled by one worker.
type Flag struct {
	mu  sync.Mutex
	set bool
}

func (f *Flag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Flags are owned by the caller and observed by the workers.
type Flags struct {
	Reader *Flag
	Writer *Flag
}

func NewFlags() *Flags {
	return &Flags{
		Reader: &Flag{},
		Writer: &Flag{},
	}
}

func (f *Flags) SetReaderExit() {
	f.Reader.Set()
}

func (f *Flags) SetWriterExit() {
	f.Writer.Set()
}
