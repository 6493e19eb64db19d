package queue

import "github.com/danmuck/rpclink/internal/protocol/message"

// Classified holds one queue per message kind. The reader worker is the only
// producer; the owner is the only consumer.
type Classified struct {
	Requests      *Queue[message.Request]
	Notifications *Queue[message.Notification]
	Responses     *Queue[message.Response]
}

func NewClassified() *Classified {
	return &Classified{
		Requests:      New[message.Request](),
		Notifications: New[message.Notification](),
		Responses:     New[message.Response](),
	}
}

// Route appends msg to the queue matching its kind. Invalid messages are
// not queued and report KindInvalid.
func (c *Classified) Route(msg message.Message) message.Kind {
	kind := msg.Kind()
	switch kind {
	case message.KindRequest:
		c.Requests.PushBack(*msg.Request)
	case message.KindNotification:
		c.Notifications.PushBack(*msg.Notification)
	case message.KindResponse:
		c.Responses.PushBack(*msg.Response)
	}
	return kind
}

// PopFront removes the oldest message of the given kind.
func (c *Classified) PopFront(kind message.Kind) (message.Message, bool) {
	switch kind {
	case message.KindRequest:
		if r, ok := c.Requests.PopFront(); ok {
			return message.FromRequest(r), true
		}
	case message.KindNotification:
		if n, ok := c.Notifications.PopFront(); ok {
			return message.FromNotification(n), true
		}
	case message.KindResponse:
		if r, ok := c.Responses.PopFront(); ok {
			return message.FromResponse(r), true
		}
	}
	return message.Message{}, false
}

func (c *Classified) Len(kind message.Kind) int {
	switch kind {
	case message.KindRequest:
		return c.Requests.Len()
	case message.KindNotification:
		return c.Notifications.Len()
	case message.KindResponse:
		return c.Responses.Len()
	default:
		return 0
	}
}

// Depths snapshots the per-kind queue lengths. Each length is read under its
// own lock, so the snapshot is not atomic across kinds.
func (c *Classified) Depths() map[message.Kind]int {
	out := make(map[message.Kind]int, 3)
	for _, kind := range message.Kinds() {
		out[kind] = c.Len(kind)
	}
	return out
}
