package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message exchanged between a hub and its clients.
// Requests (subscribe, unsubscribe, publish) are answered with a success or
// error message, snapshots are pushed by the hub without a request.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Channel string `json:"channel,omitempty"` // Used for: Subscribe, Unsubscribe, Publish, Snapshot
	Origin  string `json:"origin,omitempty"`  // Used for: Subscribe, Publish (request), Snapshot (push)
	Payload []byte `json:"payload,omitempty"` // Used for: Publish (request), Snapshot (push)

	// Response only fields
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// AsError returns the error carried by a response message, nil if there is none.
func (m *Message) AsError() error {
	if m.MsgType == MsgTError || m.Err != "" {
		return fmt.Errorf("hub error: %s", m.Err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSubscribeRequest creates a new Subscribe request
func NewSubscribeRequest(channel, origin string) *Message {
	return &Message{
		MsgType: MsgTSubscribe,
		Channel: channel,
		Origin:  origin,
	}
}

// NewUnsubscribeRequest creates a new Unsubscribe request
func NewUnsubscribeRequest(channel, origin string) *Message {
	return &Message{
		MsgType: MsgTUnsubscribe,
		Channel: channel,
		Origin:  origin,
	}
}

// NewPublishRequest creates a new Publish request
func NewPublishRequest(channel, origin string, payload []byte) *Message {
	return &Message{
		MsgType: MsgTPublish,
		Channel: channel,
		Origin:  origin,
		Payload: payload,
	}
}

// NewSnapshotPush creates a snapshot message pushed by the hub to a subscriber
func NewSnapshotPush(channel, origin string, payload []byte) *Message {
	return &Message{
		MsgType: MsgTSnapshot,
		Channel: channel,
		Origin:  origin,
		Payload: payload,
	}
}

// NewResponse creates a success response, or an error response if err is not nil
func NewResponse(err error) *Message {
	if err != nil {
		return NewErrorResponse("%s", err)
	}
	return &Message{
		MsgType: MsgTSuccess,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(format string, args ...any) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     fmt.Sprintf(format, args...),
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSubscribe:
		return "subscribe"
	case MsgTUnsubscribe:
		return "unsubscribe"
	case MsgTPublish:
		return "publish"
	case MsgTSnapshot:
		return "snapshot"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "subscribe":
		*t = MsgTSubscribe
	case "unsubscribe":
		*t = MsgTUnsubscribe
	case "publish":
		*t = MsgTPublish
	case "snapshot":
		*t = MsgTSnapshot
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Channel operations

	MsgTSubscribe   // Subscribe the connection to a channel
	MsgTUnsubscribe // Unsubscribe the connection from a channel
	MsgTPublish     // Publish a payload on a channel

	// Pushes

	MsgTSnapshot // Snapshot relayed by the hub to a subscriber
)
