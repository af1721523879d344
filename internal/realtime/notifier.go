// Package realtime fans task events out to connected WebSocket clients.
// Events are not persisted: a client that is not subscribed when an event is
// published never sees it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	EventNewComment = "new-comment-posted"

	topicPrefix = "task-"
)

// Notifier publishes an event to every subscriber of a topic.
type Notifier interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Message is the frame delivered to subscribers.
type Message struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func TaskTopic(taskID string) string {
	return topicPrefix + taskID
}

func encode(topic, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(Message{Type: "event", Topic: topic, Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// LocalNotifier delivers straight to an in-process hub. It is used when no
// Redis is configured, which limits fan-out to a single API instance.
type LocalNotifier struct {
	hub *Hub
}

func NewLocalNotifier(hub *Hub) *LocalNotifier {
	return &LocalNotifier{hub: hub}
}

func (n *LocalNotifier) Publish(_ context.Context, topic, event string, payload any) error {
	data, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	n.hub.Deliver(topic, data)
	return nil
}
