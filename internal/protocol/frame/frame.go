package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"

	headerTerminator = "\r\n"

	// MaxHeaderLines bounds the header block of one frame.
	MaxHeaderLines = 32
)

var (
	ErrMissingContentLength = errors.New("frame: missing content-length header")
	ErrInvalidContentLength = errors.New("frame: invalid content-length header")
	ErrMalformedHeader      = errors.New("frame: malformed header line")
	ErrHeaderTooLarge       = errors.New("frame: header line too large")
	ErrTooManyHeaders       = errors.New("frame: too many header lines")
	ErrPayloadTooLarge      = errors.New("frame: payload too large")
	ErrTruncated            = errors.New("frame: truncated frame")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  8 * 1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// ReadFrame reads one Content-Length framed payload.
//
// io.EOF is returned only when the stream ends before the first header byte.
func ReadFrame(r *bufio.Reader, limits Limits) ([]byte, error) {
	size := -1
	for lines := 0; ; lines++ {
		if lines >= MaxHeaderLines {
			return nil, ErrTooManyHeaders
		}
		raw, err := readHeaderLine(r, limits.MaxHeaderBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if lines == 0 && len(raw) == 0 {
					return nil, io.EOF
				}
				return nil, ErrTruncated
			}
			return nil, err
		}

		line := strings.TrimSuffix(strings.TrimSuffix(string(raw), "\n"), "\r")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		if !strings.EqualFold(strings.TrimSpace(name), HeaderContentLength) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContentLength, strings.TrimSpace(value))
		}
		size = n
	}

	if size < 0 {
		return nil, ErrMissingContentLength
	}
	if limits.MaxPayloadBytes > 0 && size > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return payload, nil
}

// readHeaderLine reads through the next '\n'. It stops with ErrHeaderTooLarge
// as soon as the line outgrows limit, so at most limit plus one buffer of input
// is consumed.
func readHeaderLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if limit > 0 && len(line)+len(chunk) > limit {
			return nil, ErrHeaderTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

// WriteFrame writes the header block and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if limits.MaxPayloadBytes > 0 && len(payload) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	buf.WriteString(HeaderContentLength)
	buf.WriteString(": ")
	buf.WriteString(strconv.Itoa(len(payload)))
	buf.WriteString(headerTerminator)
	buf.WriteString(headerTerminator)
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}
