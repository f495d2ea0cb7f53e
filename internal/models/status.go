package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the life cycle states of a task status record.
type Status int

const (
	// StatusNotSubmitted is virtual: it describes a key without a record and is never persisted.
	StatusNotSubmitted Status = iota
	StatusSubmitted
	StatusChecked
	StatusCheckedSubmitted
	StatusCheckedFailed
	StatusVerified
	StatusVerifiedSubmitted
	StatusVerifiedFailed
	StatusFailed
)

// Event is an input that moves a status record through its life cycle.
type Event int

const (
	EventSubmit Event = iota + 1
	EventCheckPassed
	EventCheckFailed
	EventVerify
	EventUnverify
)

// ErrUnknownStatus indicates a status value outside of the enum.
var ErrUnknownStatus = errors.New("unknown status")

// ErrInvalidTransition indicates the event is not defined for the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusNames = map[Status]string{
	StatusNotSubmitted:      "not_submitted",
	StatusSubmitted:         "submitted",
	StatusChecked:           "checked",
	StatusCheckedSubmitted:  "checked_submitted",
	StatusCheckedFailed:     "checked_failed",
	StatusVerified:          "verified",
	StatusVerifiedSubmitted: "verified_submitted",
	StatusVerifiedFailed:    "verified_failed",
	StatusFailed:            "failed",
}

var eventNames = map[Event]string{
	EventSubmit:      "submit",
	EventCheckPassed: "check_passed",
	EventCheckFailed: "check_failed",
	EventVerify:      "verify",
	EventUnverify:    "unverify",
}

// ParseStatus converts the snake_case name of a status into its value.
func ParseStatus(value string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for status, name := range statusNames {
		if name == normalized {
			return status, nil
		}
	}
	return StatusNotSubmitted, fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

// Valid reports whether the value belongs to the enum.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the status as its integer code.
func (s Status) Value() (driver.Value, error) {
	return int64(s), nil
}

// Scan reads the integer code of a status column.
func (s *Status) Scan(src interface{}) error {
	switch value := src.(type) {
	case int64:
		*s = Status(value)
	case int32:
		*s = Status(value)
	case []byte:
		return s.scanText(string(value))
	case string:
		return s.scanText(value)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrUnknownStatus, src)
	}
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(*s))
	}
	return nil
}

func (s *Status) scanText(value string) error {
	var code int
	if _, err := fmt.Sscanf(value, "%d", &code); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s.Scan(int64(code))
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// IsChecked reports whether the status belongs to the Checked family.
func (s Status) IsChecked() bool {
	return s == StatusChecked || s == StatusCheckedSubmitted || s == StatusCheckedFailed
}

// IsVerified reports whether the status belongs to the Verified family.
func (s Status) IsVerified() bool {
	return s == StatusVerified || s == StatusVerifiedSubmitted || s == StatusVerifiedFailed
}

// IsFailed reports whether the status carries a failure output.
func (s Status) IsFailed() bool {
	return s == StatusFailed || s == StatusCheckedFailed || s == StatusVerifiedFailed
}

// IsAwaitingCheck reports whether a submission is waiting for a verdict.
func (s Status) IsAwaitingCheck() bool {
	return s == StatusSubmitted || s == StatusCheckedSubmitted || s == StatusVerifiedSubmitted
}

// Tier orders the families: not submitted < submitted/failed < checked < verified.
func (s Status) Tier() int {
	switch {
	case s.IsVerified():
		return 3
	case s.IsChecked():
		return 2
	case s == StatusSubmitted || s == StatusFailed:
		return 1
	default:
		return 0
	}
}

// Next returns the status reached by applying the event to the current status.
// A passing or failing re-check never moves a record below its family.
func (s Status) Next(event Event) (Status, error) {
	if !s.Valid() {
		return s, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}

	switch event {
	case EventSubmit:
		switch {
		case s.IsVerified():
			return StatusVerifiedSubmitted, nil
		case s.IsChecked():
			return StatusCheckedSubmitted, nil
		default:
			return StatusSubmitted, nil
		}
	case EventCheckPassed:
		if s.IsVerified() {
			return StatusVerified, nil
		}
		return StatusChecked, nil
	case EventCheckFailed:
		switch {
		case s.IsVerified():
			return StatusVerifiedFailed, nil
		case s.IsChecked():
			return StatusCheckedFailed, nil
		default:
			return StatusFailed, nil
		}
	case EventVerify:
		if s.IsChecked() || s.IsVerified() {
			return StatusVerified, nil
		}
	case EventUnverify:
		switch s {
		case StatusVerified:
			return StatusChecked, nil
		case StatusVerifiedSubmitted:
			return StatusCheckedSubmitted, nil
		case StatusVerifiedFailed:
			return StatusCheckedFailed, nil
		}
	default:
		return s, fmt.Errorf("%w: unknown event %d", ErrInvalidTransition, int(event))
	}

	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, s)
}
