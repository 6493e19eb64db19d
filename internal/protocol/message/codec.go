package message

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/rpclink/internal/protocol/frame"
)

var (
	ErrDecode = errors.New("message: decode failed")
	ErrEncode = errors.New("message: encode failed")
	ErrWrite  = errors.New("message: write failed")
)

var nullResult = json.RawMessage("null")

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  *string         `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// Read decodes the next message using frame.DefaultLimits.
func Read(r *bufio.Reader) (Message, error) {
	return ReadLimits(r, frame.DefaultLimits())
}

// ReadLimits decodes the next message from r.
//
// io.EOF is returned unwrapped when the peer closed the stream cleanly;
// every other failure wraps ErrDecode.
func ReadLimits(r *bufio.Reader, limits frame.Limits) (Message, error) {
	payload, err := frame.ReadFrame(r, limits)
	if err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return Decode(payload)
}

// Decode classifies one JSON-RPC payload.
func Decode(payload []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if w.JSONRPC != Version {
		return Message{}, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrDecode, w.JSONRPC)
	}

	switch {
	case w.ID != nil && w.Method != nil:
		return FromRequest(Request{ID: *w.ID, Method: *w.Method, Params: w.Params}), nil
	case w.Method != nil:
		return FromNotification(Notification{Method: *w.Method, Params: w.Params}), nil
	case w.ID != nil:
		return FromResponse(Response{ID: *w.ID, Result: w.Result, Error: w.Error}), nil
	default:
		return Message{}, fmt.Errorf("%w: message has neither id nor method", ErrDecode)
	}
}

// Encode renders the JSON-RPC payload for m without framing.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{JSONRPC: Version}
	switch m.Kind() {
	case KindRequest:
		id := m.Request.ID
		method := m.Request.Method
		w.ID, w.Method, w.Params = &id, &method, m.Request.Params
	case KindNotification:
		method := m.Notification.Method
		w.Method, w.Params = &method, m.Notification.Params
	case KindResponse:
		id := m.Response.ID
		w.ID, w.Result, w.Error = &id, m.Response.Result, m.Response.Error
		if w.Error == nil && len(w.Result) == 0 {
			w.Result = nullResult
		}
	default:
		return nil, fmt.Errorf("%w: message must hold exactly one kind", ErrEncode)
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return payload, nil
}

// Write serializes m onto w using frame.DefaultLimits.
func (m Message) Write(w io.Writer) error {
	return m.WriteLimits(w, frame.DefaultLimits())
}

func (m Message) WriteLimits(w io.Writer, limits frame.Limits) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	if err := frame.WriteFrame(w, payload, limits); err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			return fmt.Errorf("%w: %w", ErrEncode, err)
		}
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}
