// Package wsserver streams daemon events to local WebSocket clients.
//
// # Protocol
//
// Every server frame is a JSON text message with a "type" field and a
// unique "event_id". Clients receive all topics on connect and may narrow
// the set with
//
//	{"action":"subscribe","topics":["activated"]}
//	{"action":"unsubscribe","topics":["log"]}
//
// Malformed client messages are answered with a {"type":"error"} frame.
package wsserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics a client can subscribe to. Event types equal their topic.
const (
	TopicActivated = "activated"
	TopicLog       = "log"
)

// AllTopics is the subscription set of a freshly connected client.
var AllTopics = []string{TopicActivated, TopicLog}

// Event is a frame published through the hub.
type Event interface {
	Topic() string
}

// ActivatedEvent reports one hotkey activation.
type ActivatedEvent struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	BindingID int    `json:"binding_id"`
	Name      string `json:"name"`
	Combo     string `json:"combo"`
	Action    string `json:"action"`
	// Result is the action output, such as recognized text.
	Result string    `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

func (ActivatedEvent) Topic() string { return TopicActivated }

// NewActivatedEvent stamps an activation with a fresh event id.
func NewActivatedEvent(bindingID int, name, combo, action string, at time.Time) ActivatedEvent {
	return ActivatedEvent{
		Type:      TopicActivated,
		EventID:   uuid.NewString(),
		BindingID: bindingID,
		Name:      name,
		Combo:     combo,
		Action:    action,
		Time:      at.UTC(),
	}
}

// LogEvent carries a warning or error from the daemon log.
type LogEvent struct {
	Type    string            `json:"type"`
	EventID string            `json:"event_id"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Group   string            `json:"group,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Time    time.Time         `json:"time"`
}

func (LogEvent) Topic() string { return TopicLog }

// NewLogEvent stamps a log record with a fresh event id.
func NewLogEvent(level, message, group string, attrs map[string]string, at time.Time) LogEvent {
	return LogEvent{
		Type:    TopicLog,
		EventID: uuid.NewString(),
		Level:   level,
		Message: message,
		Group:   group,
		Attrs:   attrs,
		Time:    at.UTC(),
	}
}

// subscribeAction and unsubscribeAction are the valid values for subscribeMsg.Action.
const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

// subscribeMsg is the JSON payload for client subscribe/unsubscribe requests.
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// errorMsg is the JSON payload for server error notifications sent to the client.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeEvent marshals ev into a text frame payload.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("wsserver: encode event: nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("wsserver: encode %s event: %w", ev.Topic(), err)
	}
	return payload, nil
}

func validTopic(topic string) bool {
	return topic == TopicActivated || topic == TopicLog
}
