package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound frame types.
const (
	FrameAuth       = "auth"
	FrameTyping     = "typing"
	FrameStopTyping = "stopTyping"
)

var ErrInvalidFrame = errors.New("invalid client frame")

// ClientFrame is a message sent by a connected client.
type ClientFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// ParseFrame decodes and validates a client frame.
func ParseFrame(raw []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	f.Type = strings.TrimSpace(f.Type)
	switch f.Type {
	case FrameAuth:
	case FrameTyping, FrameStopTyping:
		if strings.TrimSpace(f.ProjectID) == "" {
			return ClientFrame{}, fmt.Errorf("%w: %s requires projectId", ErrInvalidFrame, f.Type)
		}
	case "":
		return ClientFrame{}, fmt.Errorf("%w: missing type", ErrInvalidFrame)
	default:
		return ClientFrame{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidFrame, f.Type)
	}
	return f, nil
}
