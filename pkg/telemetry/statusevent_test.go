package telemetry_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta(t *testing.T) telemetry.EventMeta {
	t.Helper()
	return telemetry.EventMeta{
		Timestamp:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		SensorID:   uuid.New(),
		SensorName: "Living Room Temperature",
	}
}

func TestStatusEvent_RoundTrip_AllVariants(t *testing.T) {
	meta := testMeta(t)

	events := []telemetry.StatusEvent{
		&telemetry.SensorCreated{Meta: meta},
		&telemetry.SensorDeleted{Meta: meta},
		&telemetry.SensorInfo{Meta: meta, Message: "battery at 40%"},
		&telemetry.SensorWarning{SensorInfo: telemetry.SensorInfo{Meta: meta, Message: "battery at 15%"}},
		&telemetry.SensorError{SensorInfo: telemetry.SensorInfo{Meta: meta, Message: "battery dead"}},
		&telemetry.MeasurementStarted{
			Meta:             meta,
			TopicName:        "telemetry__Living-Room-Temperature__FLOAT_BINARY__tok",
			Format:           telemetry.FormatFloatBinary,
			SamplingInterval: 0.2,
		},
		&telemetry.MeasurementStopped{
			Meta:      meta,
			TopicName: "telemetry__Living-Room-Temperature__FLOAT_BINARY__tok",
		},
	}

	for _, ev := range events {
		data, err := telemetry.EncodeStatusEvent(ev)
		require.NoError(t, err, "encode %s", ev.Type())

		decoded, err := telemetry.DecodeStatusEvent(data)
		require.NoError(t, err, "decode %s", ev.Type())

		// The discriminator and the whole variant must survive the trip.
		assert.Equal(t, ev.Type(), decoded.Type())
		assert.Equal(t, ev, decoded)
	}
}

func TestEncodeStatusEvent_CarriesExplicitTag(t *testing.T) {
	data, err := telemetry.EncodeStatusEvent(&telemetry.SensorCreated{Meta: testMeta(t)})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "SENSOR_CREATED", doc["event_type"])
	assert.Equal(t, "Living Room Temperature", doc["sensor_name"])
}

func TestDecodeStatusEvent_UnknownTagBecomesOther(t *testing.T) {
	sensorID := uuid.New()
	data := []byte(`{
		"event_type": "FIRMWARE_UPDATED",
		"timestamp": "2026-08-30T12:00:00Z",
		"sensor_id": "` + sensorID.String() + `",
		"firmware_version": "2.4.1"
	}`)

	decoded, err := telemetry.DecodeStatusEvent(data)
	require.NoError(t, err)

	other, ok := decoded.(*telemetry.SensorOther)
	require.True(t, ok, "unknown tags must decode as the open variant, got %T", decoded)
	assert.Equal(t, sensorID, other.Meta.SensorID)
	assert.JSONEq(t, `"2.4.1"`, string(other.Extra["firmware_version"]))

	// The open variant re-encodes without losing the foreign fields.
	reencoded, err := telemetry.EncodeStatusEvent(other)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(reencoded, &doc))
	assert.Equal(t, "SENSOR_OTHER", doc["event_type"])
	assert.Equal(t, "2.4.1", doc["firmware_version"])
}

func TestDecodeStatusEvent_Malformed(t *testing.T) {
	t.Run("missing tag", func(t *testing.T) {
		_, err := telemetry.DecodeStatusEvent([]byte(`{"timestamp":"2026-08-30T12:00:00Z"}`))
		assert.ErrorIs(t, err, telemetry.ErrUnknownEventType)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := telemetry.DecodeStatusEvent([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("started without topic", func(t *testing.T) {
		_, err := telemetry.DecodeStatusEvent([]byte(`{"event_type":"MEASUREMENT_STARTED","sample_format":"FLOAT_BINARY"}`))
		assert.Error(t, err)
	})

	t.Run("started with bogus format", func(t *testing.T) {
		_, err := telemetry.DecodeStatusEvent([]byte(`{"event_type":"MEASUREMENT_STARTED","topic_name":"t","sample_format":"FLOAT128"}`))
		assert.Error(t, err)
	})
}

func TestParseSampleFormat(t *testing.T) {
	format, err := telemetry.ParseSampleFormat("FLOAT_BINARY")
	require.NoError(t, err)
	assert.Equal(t, telemetry.FormatFloatBinary, format)

	_, err = telemetry.ParseSampleFormat("float_binary")
	assert.Error(t, err, "format tags are case-sensitive on the wire")
}
