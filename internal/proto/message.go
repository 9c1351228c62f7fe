package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Operations carried in the "operation" field.
const (
	OperationSleepStatus = "sleep_status"
	OperationSnooze      = "snooze"
)

var (
	ErrMalformed        = errors.New("malformed presence message")
	ErrMissingOperation = errors.New("operation is required")
	ErrMissingUsername  = errors.New("username is required")
	ErrMissingData      = errors.New("data is required")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidData      = errors.New("invalid data for operation")
)

// PresenceMessage is the unit of wire exchange in both directions.
// Values are immutable once built; Data is copied on construction and decode.
type PresenceMessage struct {
	Operation string          `json:"operation"`
	Username  string          `json:"username"`
	Data      json.RawMessage `json:"data"`
}

// SleepStatusData is the payload of a sleep_status message.
type SleepStatusData struct {
	IsAsleep bool `json:"is_asleep"`
}

// SnoozeData is the payload of a snooze message. Count is the subject's
// snooze counter after the increment.
type SnoozeData struct {
	Count int `json:"count"`
}

// New builds a validated message. data is marshaled to JSON.
func New(operation, username string, data any) (PresenceMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PresenceMessage{}, fmt.Errorf("marshal data: %w", err)
	}
	msg := PresenceMessage{Operation: operation, Username: username, Data: raw}
	if err := msg.Validate(); err != nil {
		return PresenceMessage{}, err
	}
	return msg, nil
}

// NewSleepStatus builds a sleep_status message for username.
func NewSleepStatus(username string, asleep bool) (PresenceMessage, error) {
	return New(OperationSleepStatus, username, SleepStatusData{IsAsleep: asleep})
}

// NewSnooze builds a snooze message for username.
func NewSnooze(username string, count int) (PresenceMessage, error) {
	return New(OperationSnooze, username, SnoozeData{Count: count})
}

// Decode parses a transport payload and validates it against the schema.
func Decode(raw []byte) (PresenceMessage, error) {
	var msg PresenceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PresenceMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg.Data = bytes.Clone(msg.Data)
	if err := msg.Validate(); err != nil {
		return PresenceMessage{}, err
	}
	return msg, nil
}

// Encode serializes the message for the wire.
func Encode(msg PresenceMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Validate checks required fields, the operation, and the operation payload.
func (m PresenceMessage) Validate() error {
	if m.Operation == "" {
		return ErrMissingOperation
	}
	if m.Username == "" {
		return ErrMissingUsername
	}
	if len(m.Data) == 0 || bytes.Equal(bytes.TrimSpace(m.Data), []byte("null")) {
		return ErrMissingData
	}

	switch m.Operation {
	case OperationSleepStatus:
		_, err := m.SleepStatus()
		return err
	case OperationSnooze:
		_, err := m.Snooze()
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, m.Operation)
	}
}

// SleepStatus decodes the sleep_status payload. is_asleep is required.
func (m PresenceMessage) SleepStatus() (SleepStatusData, error) {
	if m.Operation != OperationSleepStatus {
		return SleepStatusData{}, fmt.Errorf("%w: not a %s message", ErrInvalidData, OperationSleepStatus)
	}
	var payload struct {
		IsAsleep *bool `json:"is_asleep"`
	}
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		return SleepStatusData{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if payload.IsAsleep == nil {
		return SleepStatusData{}, fmt.Errorf("%w: is_asleep is required", ErrInvalidData)
	}
	return SleepStatusData{IsAsleep: *payload.IsAsleep}, nil
}

// Snooze decodes the snooze payload. count is required and non-negative.
func (m PresenceMessage) Snooze() (SnoozeData, error) {
	if m.Operation != OperationSnooze {
		return SnoozeData{}, fmt.Errorf("%w: not a %s message", ErrInvalidData, OperationSnooze)
	}
	var payload struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		return SnoozeData{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if payload.Count == nil || *payload.Count < 0 {
		return SnoozeData{}, fmt.Errorf("%w: count must be a non-negative integer", ErrInvalidData)
	}
	return SnoozeData{Count: *payload.Count}, nil
}
