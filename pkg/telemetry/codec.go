package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// ====================================================================================
// Binary sample codec. Pure functions, no state.
//
// FLOAT_BINARY layout:          [1-byte presence flag][4-byte big-endian float32]
//                               (the float bytes are omitted for a null reading;
//                               the broker record timestamp is authoritative)
// FLOAT_WITH_TIMESTAMP layout:  [8-byte big-endian unix-milli timestamp]
//                               [1-byte presence flag][4-byte big-endian float32]
// ====================================================================================

const (
	flagAbsent  = 0x00
	flagPresent = 0x01
)

// EncodeSamplePayload converts a sample to the binary layout of the given format.
func EncodeSamplePayload(s Sample, format SampleFormat) ([]byte, error) {
	switch format {
	case FormatFloatBinary:
		return encodeFloatValue(nil, s.Value, format)
	case FormatFloatWithTimestamp:
		ts := s.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		buf := binary.BigEndian.AppendUint64(make([]byte, 0, 13), uint64(ts.UnixMilli()))
		return encodeFloatValue(buf, s.Value, format)
	case FormatCustom, FormatInt, FormatBool, FormatText:
		return nil, fmt.Errorf("encode %s: %w", format, ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("encode %q: %w", format, ErrUnsupportedFormat)
	}
}

// DecodeSamplePayload converts a binary payload back to a sample. The broker's
// per-record timestamp is supplied as milliseconds since epoch and becomes the
// sample timestamp for formats that carry none of their own.
func DecodeSamplePayload(payload []byte, format SampleFormat, recordTimestampMs int64) (Sample, error) {
	switch format {
	case FormatFloatBinary:
		value, err := decodeFloatValue(payload, format)
		if err != nil {
			return Sample{}, err
		}
		return Sample{Timestamp: time.UnixMilli(recordTimestampMs).UTC(), Value: value}, nil
	case FormatFloatWithTimestamp:
		if len(payload) < 9 {
			return Sample{}, fmt.Errorf("decode %s: payload %d bytes, need at least 9: %w", format, len(payload), ErrMalformedPayload)
		}
		ts := time.UnixMilli(int64(binary.BigEndian.Uint64(payload[:8]))).UTC()
		value, err := decodeFloatValue(payload[8:], format)
		if err != nil {
			return Sample{}, err
		}
		return Sample{Timestamp: ts, Value: value}, nil
	case FormatCustom, FormatInt, FormatBool, FormatText:
		return Sample{}, fmt.Errorf("decode %s: %w", format, ErrUnsupportedFormat)
	default:
		return Sample{}, fmt.Errorf("decode %q: %w", format, ErrUnsupportedFormat)
	}
}

// encodeFloatValue appends the presence flag and, when present, the reading to buf.
func encodeFloatValue(buf []byte, value any, format SampleFormat) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return append(buf, flagAbsent), nil
	case float32:
		buf = append(buf, flagPresent)
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(v)), nil
	case float64:
		buf = append(buf, flagPresent)
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v))), nil
	default:
		return nil, fmt.Errorf("encode %s: value type %T: %w", format, value, ErrFormatMismatch)
	}
}

// decodeFloatValue reads a presence flag plus optional float32 and nothing else.
func decodeFloatValue(payload []byte, format SampleFormat) (any, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode %s: empty payload: %w", format, ErrMalformedPayload)
	}
	switch payload[0] {
	case flagAbsent:
		if len(payload) != 1 {
			return nil, fmt.Errorf("decode %s: %d trailing bytes after null flag: %w", format, len(payload)-1, ErrMalformedPayload)
		}
		return nil, nil
	case flagPresent:
		if len(payload) != 5 {
			return nil, fmt.Errorf("decode %s: payload %d bytes, want 5: %w", format, len(payload), ErrMalformedPayload)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(payload[1:])), nil
	default:
		return nil, fmt.Errorf("decode %s: invalid presence flag 0x%02x: %w", format, payload[0], ErrMalformedPayload)
	}
}
