package sample

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Valid", testParseValid)
	t.Run("Rejected", testParseRejected)
	t.Run("RoundTrip", testParseRoundTrip)
}

func testParseValid(t *testing.T) {
	testCases := []struct {
		name  string
		raw   string
		want  time.Time
		value float64
	}{
		{
			name:  "JavaScript toISOString",
			raw:   `{"timestamp":"2024-03-01T10:00:00.123Z","value":42.5}`,
			want:  time.Date(2024, 3, 1, 10, 0, 0, 123_000_000, time.UTC),
			value: 42.5,
		},
		{
			name:  "Offset zone",
			raw:   `{"timestamp":"2024-03-01T12:00:00+02:00","value":0}`,
			want:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			value: 0,
		},
		{
			name:  "Local date-time",
			raw:   `{"timestamp":"2024-03-01T10:00:00","value":-3}`,
			want:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			value: -3,
		},
		{
			name:  "Date only",
			raw:   `{"timestamp":"2024-03-01","value":1e3}`,
			want:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			value: 1000,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Parse([]byte(tc.raw))
			require.NoError(t, err)
			assert.True(t, s.Timestamp.Equal(tc.want), "got %s, want %s", s.Timestamp, tc.want)
			assert.Equal(t, tc.value, s.Value)
		})
	}
}

func testParseRejected(t *testing.T) {
	testCases := []struct {
		name  string
		raw   string
		field string
	}{
		{name: "Not a date", raw: `{"timestamp":"not-a-date","value":5}`, field: "timestamp"},
		{name: "Missing timestamp", raw: `{"value":5}`, field: "timestamp"},
		{name: "Numeric timestamp", raw: `{"timestamp":1700000000,"value":5}`, field: "timestamp"},
		{name: "Missing value", raw: `{"timestamp":"2024-03-01T10:00:00Z"}`, field: "value"},
		{name: "Null value", raw: `{"timestamp":"2024-03-01T10:00:00Z","value":null}`, field: "value"},
		{name: "String value", raw: `{"timestamp":"2024-03-01T10:00:00Z","value":"5"}`, field: "value"},
		{name: "Array payload", raw: `[1,2]`, field: "payload"},
		{name: "Garbage", raw: `{{`, field: "payload"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSample))

			var sampleErr *InvalidSampleError
			require.ErrorAs(t, err, &sampleErr)
			assert.Equal(t, tc.field, sampleErr.Field)
		})
	}
}

func testParseRoundTrip(t *testing.T) {
	samples := []Sample{
		{Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Value: 50},
		{Timestamp: time.Date(2024, 3, 1, 10, 0, 4, 987_654_321, time.UTC), Value: 0.1 + 0.2},
		{Timestamp: time.Date(1999, 12, 31, 23, 59, 59, 1, time.FixedZone("X", 3600)), Value: -1e-9},
		{Timestamp: time.Unix(0, 0), Value: math.MaxFloat64},
	}

	for _, s := range samples {
		raw, err := Marshal(s)
		require.NoError(t, err)

		got, err := Parse(raw)
		require.NoError(t, err)
		assert.True(t, got.Equal(s), "round trip of %s: got %+v, want %+v", raw, got, s)
	}
}

func TestNewRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := New("2024-03-01T10:00:00Z", v)
		var sampleErr *InvalidSampleError
		require.ErrorAs(t, err, &sampleErr)
		assert.Equal(t, "value", sampleErr.Field)
	}
}

func TestSampleJSON(t *testing.T) {
	var envelope struct {
		Data Sample `json:"data"`
	}
	err := json.Unmarshal([]byte(`{"data":{"timestamp":"2024-03-01T10:00:00Z","value":7}}`), &envelope)
	require.NoError(t, err)
	assert.Equal(t, 7.0, envelope.Data.Value)

	err = json.Unmarshal([]byte(`{"data":{"timestamp":"yesterday","value":7}}`), &envelope)
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = json.Marshal(Sample{Value: math.NaN()})
	assert.Error(t, err)
}
