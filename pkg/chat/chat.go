// Package chat is the message-transport collaborator boundary: an opaque
// payload goes to a peer, a delivery acknowledgement comes back. Message
// persistence and sync are outside this repository.
package chat

import (
	"context"
	"time"
)

type DeliveryAck struct {
	MessageID   string    `json:"messageId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type Messenger interface {
	Send(ctx context.Context, peer string, payload []byte) (DeliveryAck, error)
}
