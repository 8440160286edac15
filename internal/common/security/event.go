package security

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequestType is the lifecycle event a handler invocation belongs to.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Event is one handler invocation. Requests carries the whole directive list;
// every invocation applies all of it.
type Event struct {
	RequestType RequestType `json:"requestType,omitempty"`
	Requests    []Directive `json:"requests"`
	// Lifecycle is injected by lambda invocations managed with the CRUD
	// lifecycle scope.
	Lifecycle *Lifecycle `json:"tf,omitempty"`
}

// Lifecycle is the action block added to invocation input by the provisioning engine.
type Lifecycle struct {
	Action string `json:"action"`
}

// Type resolves the event's request type. The engine's lifecycle action wins
// over RequestType; an event with neither is a Create.
func (e Event) Type() (RequestType, error) {
	raw := string(e.RequestType)
	if e.Lifecycle != nil && strings.TrimSpace(e.Lifecycle.Action) != "" {
		raw = e.Lifecycle.Action
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "create":
		return RequestCreate, nil
	case "update":
		return RequestUpdate, nil
	case "delete":
		return RequestDelete, nil
	default:
		return "", fmt.Errorf("security: unknown request type %q", raw)
	}
}

// NewEvent builds a Create event carrying directives.
func NewEvent(directives []Directive) Event {
	return Event{RequestType: RequestCreate, Requests: directives}
}

// ParseEvent decodes an event document.
func ParseEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("invalid event JSON: %w", err)
	}
	return e, nil
}

// JSON renders the event.
func (e Event) JSON() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	return string(b), nil
}
