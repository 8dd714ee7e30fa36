package telemetry

import (
	"fmt"
	"time"
)

// SampleFormat identifies the wire encoding contract for a data topic's payloads.
// Every data topic carries exactly one format, declared up front by the
// MeasurementStarted event that announces the topic.
type SampleFormat string

const (
	// FormatCustom carries arbitrary JSON-structured readings.
	FormatCustom SampleFormat = "CUSTOM"
	// FormatFloatWithTimestamp carries a binary float reading with an
	// in-payload capture timestamp.
	FormatFloatWithTimestamp SampleFormat = "FLOAT_WITH_TIMESTAMP"
	// FormatFloatBinary carries a bare binary float reading; the broker's
	// per-record publish timestamp is authoritative.
	FormatFloatBinary SampleFormat = "FLOAT_BINARY"
	// FormatInt carries binary integer readings.
	FormatInt SampleFormat = "INT"
	// FormatBool carries binary boolean readings.
	FormatBool SampleFormat = "BOOL"
	// FormatText carries UTF-8 text readings.
	FormatText SampleFormat = "TEXT"
)

// ParseSampleFormat validates a wire or config string against the known formats.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch f := SampleFormat(s); f {
	case FormatCustom, FormatFloatWithTimestamp, FormatFloatBinary, FormatInt, FormatBool, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown sample format %q", s)
}

// Sample is a single timestamped sensor reading. Value is nil for a null
// reading; otherwise its runtime type must match the format declared for the
// topic it travels on (float32 for the float formats). A mismatch is a
// protocol error, never a silent coercion.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// NewFloatSample returns a float reading stamped with the current time.
func NewFloatSample(v float32) Sample {
	return Sample{Timestamp: time.Now().UTC(), Value: v}
}

// NewNullSample returns a null reading stamped with the current time.
// A null reading records that the sensor was polled but produced no value.
func NewNullSample() Sample {
	return Sample{Timestamp: time.Now().UTC()}
}
