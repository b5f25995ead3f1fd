package amqp

import (
	"encoding/json"
	"time"

	"crowdfund/internal/core"
)

const messageVersion = 1

// EventMessage is the wire form of a ledger event on the broker.
type EventMessage struct {
	Version     int        `json:"version"`
	Event       core.Event `json:"event"`
	PublishedAt time.Time  `json:"published_at"`
}

func NewEventMessage(ev core.Event) *EventMessage {
	return &EventMessage{
		Version:     messageVersion,
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes a message published by PublishEvent.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
