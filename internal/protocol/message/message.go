package message

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

// Kind selects which classified queue a message is routed to.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Kinds lists the routable kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindRequest, KindNotification, KindResponse}
}

type Request struct {
	ID     RequestID
	Method string
	Params json.RawMessage
}

type Notification struct {
	Method string
	Params json.RawMessage
}

type Response struct {
	ID     RequestID
	Result json.RawMessage
	Error  *ResponseError
}

// ResponseError is the error object carried by a failed Response.
type ResponseError struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("response error %d: %s", e.Code, e.Message)
}

// Message holds exactly one of Request, Notification or Response.
type Message struct {
	Request      *Request
	Notification *Notification
	Response     *Response
}

func FromRequest(r Request) Message {
	return Message{Request: &r}
}

func FromNotification(n Notification) Message {
	return Message{Notification: &n}
}

func FromResponse(r Response) Message {
	return Message{Response: &r}
}

func (m Message) Kind() Kind {
	switch {
	case m.Request != nil && m.Notification == nil && m.Response == nil:
		return KindRequest
	case m.Notification != nil && m.Request == nil && m.Response == nil:
		return KindNotification
	case m.Response != nil && m.Request == nil && m.Notification == nil:
		return KindResponse
	default:
		return KindInvalid
	}
}

func (m Message) String() string {
	switch m.Kind() {
	case KindRequest:
		return fmt.Sprintf("request id=%s method=%q params=%s", m.Request.ID, m.Request.Method, rawOrNone(m.Request.Params))
	case KindNotification:
		return fmt.Sprintf("notification method=%q params=%s", m.Notification.Method, rawOrNone(m.Notification.Params))
	case KindResponse:
		if m.Response.Error != nil {
			return fmt.Sprintf("response id=%s error=%q", m.Response.ID, m.Response.Error.Error())
		}
		return fmt.Sprintf("response id=%s result=%s", m.Response.ID, rawOrNone(m.Response.Result))
	default:
		return "invalid message"
	}
}

func rawOrNone(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<none>"
	}
	return string(raw)
}
