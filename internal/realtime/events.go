// Package realtime fans mutation events out to the live connections that
// joined a project group.
package realtime

import (
	"encoding/json"
)

type EventName string

const (
	EventTaskCreated    EventName = "taskCreated"
	EventTaskUpdated    EventName = "taskUpdated"
	EventTaskDeleted    EventName = "taskDeleted"
	EventCommentAdded   EventName = "commentAdded"
	EventProjectDeleted EventName = "projectDeleted"

	// EventRemovedFromProject is sent only to the connections being evicted
	// from a group. Its payload is the bare project id.
	EventRemovedFromProject EventName = "removedFromProject"
)

// Event is what a service hands to a Publisher. Data is JSON-encoded once
// per publish.
type Event struct {
	Name EventName
	Data any
}

// Envelope is the wire form delivered to every subscriber and carried over
// the Redis channel.
type Envelope struct {
	Event     EventName       `json:"event"`
	ProjectID string          `json:"projectId"`
	Data      json.RawMessage `json:"data"`
}

// CommentAddedPayload is the data of a commentAdded event.
type CommentAddedPayload struct {
	TaskID  string `json:"taskId"`
	Comment any    `json:"comment"`
}

// Publisher delivers an event to every connection in the project group,
// including the one that caused it. Implementations never block the caller
// and never fail the mutation that triggered the publish.
type Publisher interface {
	Publish(projectID string, ev Event)
}

// Evictor removes live connections from project groups when access is
// revoked.
type Evictor interface {
	EvictPrincipal(projectID, principalID string)
	CloseGroup(projectID string)
}

// Broadcaster is the full surface the services depend on.
type Broadcaster interface {
	Publisher
	Evictor
}

// Encode builds the envelope for ev.
func Encode(projectID string, ev Event) (Envelope, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: ev.Name, ProjectID: projectID, Data: data}, nil
}

// Nop discards everything. Useful where a service is built without a hub.
type Nop struct{}

func (Nop) Publish(string, Event)         {}
func (Nop) EvictPrincipal(string, string) {}
func (Nop) CloseGroup(string)             {}
