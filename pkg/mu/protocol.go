package mu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "clautify/v1"

// Command types accepted by a DSL endpoint.
const (
	TypeDSLRun    = "dsl.run"
	TypeDSLHealth = "dsl.health"
)

// Command types accepted by a playback bridge node.
const (
	TypeStateGet   = "state.get"
	TypePause      = "playback.pause"
	TypeResume     = "playback.resume"
	TypeNext       = "playback.next"
	TypePrev       = "playback.prev"
	TypeSeek       = "playback.seek"
	TypePlay       = "playback.play"
	TypeSetVolume  = "playback.setVolume"
	TypeSetShuffle = "playback.setShuffle"
	TypeSetRepeat  = "playback.setRepeat"
	TypeTransfer   = "playback.transfer"
	TypeQueueAdd   = "queue.add"
)

// Reply error codes.
const (
	CodeInvalid     = "INVALID"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "UNAVAILABLE"
	CodeError       = "ERROR"
)

// CommandEnvelope is the common command envelope for MQTT.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	From    string          `json:"from"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// ReplyEnvelope is the response envelope for commands.
type ReplyEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	OK   bool            `json:"ok"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body,omitempty"`
	Err  *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response.
type ReplyError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string         `json:"nodeId"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Caps   map[string]any `json:"caps,omitempty"`
	TS     int64          `json:"ts"`
}

// NewCommand builds a command envelope with a JSON body.
func NewCommand(cmdType string, body any) (CommandEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal body: %w", err)
	}

	return CommandEnvelope{
		Type: cmdType,
		Body: payload,
	}, nil
}

// NewReply builds a successful reply to cmd.
func NewReply(cmd CommandEnvelope, ts int64, body any) (ReplyEnvelope, error) {
	reply := ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: ts}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return ReplyEnvelope{}, fmt.Errorf("marshal reply: %w", err)
		}
		reply.Body = payload
	}
	return reply, nil
}

// NewErrorReply builds a failed reply to cmd.
func NewErrorReply(cmd CommandEnvelope, ts int64, code, message string) ReplyEnvelope {
	return ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   ts,
		Err:  &ReplyError{Code: code, Message: message},
	}
}

// ValidateCommandEnvelope validates required fields.
func ValidateCommandEnvelope(cmd CommandEnvelope) error {
	if strings.TrimSpace(cmd.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return errors.New("type is required")
	}
	if cmd.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(cmd.From) == "" {
		return errors.New("from is required")
	}
	if len(cmd.Body) == 0 {
		return errors.New("body is required")
	}
	if !json.Valid(cmd.Body) {
		return errors.New("body must be valid JSON")
	}
	return nil
}

// CommandMutatesPlayback reports whether a command changes playback on
// the bridge node.
func CommandMutatesPlayback(cmdType string) bool {
	switch cmdType {
	case TypePause, TypeResume, TypeNext, TypePrev, TypeSeek, TypePlay:
		return true
	case TypeSetVolume, TypeSetShuffle, TypeSetRepeat, TypeTransfer, TypeQueueAdd:
		return true
	default:
		return false
	}
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicPresenceAll matches the presence topic of every node.
func TopicPresenceAll(topicBase string) string {
	return fmt.Sprintf("%s/node/+/presence", topicBase)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicReply builds the reply topic for a controller instance.
func TopicReply(topicBase, controllerID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, controllerID)
}
