package telemetry

import "errors"

// Sentinel errors for the codec and status-event wire contracts. Callers use
// errors.Is to distinguish a payload that can never decode (skip the record)
// from a transport failure (restart the component).
var (
	// ErrUnsupportedFormat marks a sample format whose binary codec is not
	// implemented yet. It is an explicit placeholder, not silent data loss.
	ErrUnsupportedFormat = errors.New("sample format not implemented")

	// ErrFormatMismatch marks a sample whose runtime value type does not match
	// the format declared for its topic.
	ErrFormatMismatch = errors.New("sample value does not match declared format")

	// ErrMalformedPayload marks a binary payload that violates the fixed
	// layout of its declared format.
	ErrMalformedPayload = errors.New("malformed sample payload")

	// ErrUnknownEventType marks a status event whose discriminator tag is
	// missing. Events with an unknown (but present) tag decode as SensorOther
	// instead.
	ErrUnknownEventType = errors.New("status event missing event_type tag")
)
