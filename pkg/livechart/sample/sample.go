// Package sample defines the unit of data carried by the push channel and the
// rules a payload must satisfy before it is allowed into a series.
package sample

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidSample is matched by every *InvalidSampleError via errors.Is.
var ErrInvalidSample = errors.New("invalid sample")

// InvalidSampleError reports the payload field that failed validation.
type InvalidSampleError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidSampleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid sample: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid sample: %s: %s", e.Field, e.Reason)
}

func (e *InvalidSampleError) Unwrap() error {
	return e.Err
}

func (e *InvalidSampleError) Is(target error) bool {
	return target == ErrInvalidSample
}

// Sample is one (timestamp, value) observation. Values are immutable once
// returned by Parse or New.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Equal reports whether both samples describe the same instant and value.
func (s Sample) Equal(o Sample) bool {
	return s.Timestamp.Equal(o.Timestamp) && s.Value == o.Value
}

// Layouts accepted for the timestamp field, tried in order. Zone-less
// layouts are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// payload mirrors the wire object. Fields stay raw so a type mismatch can be
// attributed to the field that caused it.
type payload struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Parse validates a JSON payload of the form {"timestamp": string, "value": number}.
func Parse(raw []byte) (Sample, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Sample{}, &InvalidSampleError{Field: "payload", Reason: "not a JSON object", Err: err}
	}

	if isNull(p.Timestamp) {
		return Sample{}, &InvalidSampleError{Field: "timestamp", Reason: "missing"}
	}
	var ts string
	if err := json.Unmarshal(p.Timestamp, &ts); err != nil {
		return Sample{}, &InvalidSampleError{Field: "timestamp", Reason: "not a string", Err: err}
	}

	if isNull(p.Value) {
		return Sample{}, &InvalidSampleError{Field: "value", Reason: "missing"}
	}
	var v float64
	if err := json.Unmarshal(p.Value, &v); err != nil {
		return Sample{}, &InvalidSampleError{Field: "value", Reason: "not a number", Err: err}
	}

	return New(ts, v)
}

// New validates already-decoded fields.
func New(timestamp string, value float64) (Sample, error) {
	t, err := parseTime(timestamp)
	if err != nil {
		return Sample{}, &InvalidSampleError{Field: "timestamp", Reason: fmt.Sprintf("%q is not ISO-8601", timestamp), Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Sample{}, &InvalidSampleError{Field: "value", Reason: "not finite"}
	}
	return Sample{Timestamp: t, Value: value}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Marshal encodes s in the wire format understood by Parse.
func Marshal(s Sample) ([]byte, error) {
	return s.MarshalJSON()
}

// MarshalJSON implements json.Marshaler.
func (s Sample) MarshalJSON() ([]byte, error) {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return nil, &InvalidSampleError{Field: "value", Reason: "not finite"}
	}
	return json.Marshal(struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	}{
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
		Value:     s.Value,
	})
}

// UnmarshalJSON implements json.Unmarshaler with the same validation as Parse.
func (s *Sample) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
