package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Envelope is the wire shape of every outbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var schemas = map[string]func() Event{
	NameConnected:         func() Event { return &Connected{} },
	NameConnectError:      func() Event { return &ConnectError{} },
	NameCommentAdded:      func() Event { return &CommentAdded{} },
	NameCommentUpdated:    func() Event { return &CommentUpdated{} },
	NameCommentDeleted:    func() Event { return &CommentDeleted{} },
	NameCommentOnYourTask: func() Event { return &CommentOnYourTask{} },
	NameTaskStatusChanged: func() Event { return &TaskStatusChanged{} },
	NameUserTyping:        func() Event { return &UserTyping{} },
	NameUserStoppedTyping: func() Event { return &UserStoppedTyping{} },
}

// Known reports whether name has a registered schema.
func Known(name string) bool {
	_, ok := schemas[name]
	return ok
}

// Encode wraps e in an Envelope and marshals it.
func Encode(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEnvelope)
	}
	name := e.EventName()
	if !Known(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// Decode parses an envelope and decodes its data into the schema registered
// for its name. Fields not in the schema are rejected. The returned Event is
// a pointer to the concrete type, e.g. *CommentAdded.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	newEvent, ok := schemas[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEnvelope, env.Event)
	}

	e := newEvent()
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(e); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEnvelope, env.Event, err)
	}
	return e, nil
}
