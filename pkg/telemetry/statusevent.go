package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusEventType is the wire discriminator for the status-event union. The
// tag travels in the event_type field and must round-trip losslessly.
type StatusEventType string

const (
	EventTypeSensorCreated      StatusEventType = "SENSOR_CREATED"
	EventTypeSensorDeleted      StatusEventType = "SENSOR_DELETED"
	EventTypeSensorInfo         StatusEventType = "SENSOR_INFO"
	EventTypeSensorWarning      StatusEventType = "SENSOR_WARNING"
	EventTypeSensorError        StatusEventType = "SENSOR_ERROR"
	EventTypeSensorOther        StatusEventType = "SENSOR_OTHER"
	EventTypeMeasurementStarted StatusEventType = "MEASUREMENT_STARTED"
	EventTypeMeasurementStopped StatusEventType = "MEASUREMENT_STOPPED"
)

// StatusEvent is the closed union of sensor lifecycle and measurement events
// carried on the control topic. Concrete variants are the pointer types below;
// consumers dispatch with a type switch.
type StatusEvent interface {
	Type() StatusEventType
	EventMeta() EventMeta
}

// EventMeta carries the fields common to every status event.
type EventMeta struct {
	// Timestamp is when the emitting process observed the event.
	Timestamp time.Time `json:"timestamp"`
	// SensorID is globally unique within the deployment.
	SensorID uuid.UUID `json:"sensor_id"`
	// SensorName is an optional mnemonic display name.
	SensorName string `json:"sensor_name,omitempty"`
}

// SensorCreated announces a new sensor. Lifecycle only, no extra fields.
type SensorCreated struct {
	Meta EventMeta
}

// SensorDeleted announces a sensor's removal.
type SensorDeleted struct {
	Meta EventMeta
}

// SensorInfo carries an informational message from a sensor.
type SensorInfo struct {
	Meta    EventMeta
	Message string `json:"message"`
}

// SensorWarning is an escalated SensorInfo.
type SensorWarning struct {
	SensorInfo
}

// SensorError is an escalated SensorWarning.
type SensorError struct {
	SensorInfo
}

// SensorOther is the open variant for event shapes this module does not model.
// Unknown discriminator tags decode into it rather than failing, so future
// event types flow through untouched.
type SensorOther struct {
	Meta EventMeta
	// Extra holds every wire field other than the tag and the common meta.
	Extra map[string]json.RawMessage
}

// MeasurementStarted announces that a sensor began streaming samples and names
// the dedicated data topic subscribers must add.
type MeasurementStarted struct {
	Meta EventMeta
	// TopicName is the data topic the samples will appear on.
	TopicName string `json:"topic_name"`
	// Format declares how payloads on TopicName are encoded.
	Format SampleFormat `json:"sample_format"`
	// SamplingInterval is the expected seconds between samples, 0 if unknown.
	SamplingInterval float64 `json:"sampling_interval,omitempty"`
}

// MeasurementStopped announces that a sensor stopped streaming and its data
// topic can be unsubscribed and cleaned up once drained.
type MeasurementStopped struct {
	Meta EventMeta
	// TopicName is the data topic to remove from live subscription sets.
	TopicName string `json:"topic_name"`
}

func (e *SensorCreated) Type() StatusEventType      { return EventTypeSensorCreated }
func (e *SensorDeleted) Type() StatusEventType      { return EventTypeSensorDeleted }
func (e *SensorInfo) Type() StatusEventType         { return EventTypeSensorInfo }
func (e *SensorWarning) Type() StatusEventType      { return EventTypeSensorWarning }
func (e *SensorError) Type() StatusEventType        { return EventTypeSensorError }
func (e *SensorOther) Type() StatusEventType        { return EventTypeSensorOther }
func (e *MeasurementStarted) Type() StatusEventType { return EventTypeMeasurementStarted }
func (e *MeasurementStopped) Type() StatusEventType { return EventTypeMeasurementStopped }

func (e *SensorCreated) EventMeta() EventMeta      { return e.Meta }
func (e *SensorDeleted) EventMeta() EventMeta      { return e.Meta }
func (e *SensorInfo) EventMeta() EventMeta         { return e.Meta }
func (e *SensorOther) EventMeta() EventMeta        { return e.Meta }
func (e *MeasurementStarted) EventMeta() EventMeta { return e.Meta }
func (e *MeasurementStopped) EventMeta() EventMeta { return e.Meta }

// envelope is the wire shape: the discriminator plus the flattened variant fields.
type envelope struct {
	EventType StatusEventType `json:"event_type"`
	EventMeta
	Message          string       `json:"message,omitempty"`
	TopicName        string       `json:"topic_name,omitempty"`
	Format           SampleFormat `json:"sample_format,omitempty"`
	SamplingInterval float64      `json:"sampling_interval,omitempty"`
}

// EncodeStatusEvent serializes one status event as a self-describing JSON
// document keyed by the event_type tag.
func EncodeStatusEvent(ev StatusEvent) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode status event: event is nil")
	}

	env := envelope{EventType: ev.Type(), EventMeta: ev.EventMeta()}
	switch e := ev.(type) {
	case *SensorCreated, *SensorDeleted:
	case *SensorInfo:
		env.Message = e.Message
	case *SensorWarning:
		env.Message = e.Message
	case *SensorError:
		env.Message = e.Message
	case *MeasurementStarted:
		env.TopicName = e.TopicName
		env.Format = e.Format
		env.SamplingInterval = e.SamplingInterval
	case *MeasurementStopped:
		env.TopicName = e.TopicName
	case *SensorOther:
		return encodeOther(e)
	default:
		return nil, fmt.Errorf("encode status event: unsupported variant %T", ev)
	}
	return json.Marshal(env)
}

// encodeOther merges the open variant's extra fields back into the document.
func encodeOther(e *SensorOther) ([]byte, error) {
	doc := make(map[string]any, len(e.Extra)+4)
	for k, v := range e.Extra {
		doc[k] = v
	}
	doc["event_type"] = EventTypeSensorOther
	doc["timestamp"] = e.Meta.Timestamp
	doc["sensor_id"] = e.Meta.SensorID
	if e.Meta.SensorName != "" {
		doc["sensor_name"] = e.Meta.SensorName
	}
	return json.Marshal(doc)
}

// DecodeStatusEvent parses a control-topic document back into its concrete
// variant. A missing tag is a schema violation. An unknown tag is not: it
// decodes as SensorOther so newer emitters never crash older consumers.
func DecodeStatusEvent(data []byte) (StatusEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode status event: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("decode status event: %w", ErrUnknownEventType)
	}

	switch env.EventType {
	case EventTypeSensorCreated:
		return &SensorCreated{Meta: env.EventMeta}, nil
	case EventTypeSensorDeleted:
		return &SensorDeleted{Meta: env.EventMeta}, nil
	case EventTypeSensorInfo:
		return &SensorInfo{Meta: env.EventMeta, Message: env.Message}, nil
	case EventTypeSensorWarning:
		return &SensorWarning{SensorInfo{Meta: env.EventMeta, Message: env.Message}}, nil
	case EventTypeSensorError:
		return &SensorError{SensorInfo{Meta: env.EventMeta, Message: env.Message}}, nil
	case EventTypeMeasurementStarted:
		if env.TopicName == "" {
			return nil, fmt.Errorf("decode %s: topic_name is required", env.EventType)
		}
		if _, err := ParseSampleFormat(string(env.Format)); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return &MeasurementStarted{
			Meta:             env.EventMeta,
			TopicName:        env.TopicName,
			Format:           env.Format,
			SamplingInterval: env.SamplingInterval,
		}, nil
	case EventTypeMeasurementStopped:
		if env.TopicName == "" {
			return nil, fmt.Errorf("decode %s: topic_name is required", env.EventType)
		}
		return &MeasurementStopped{Meta: env.EventMeta, TopicName: env.TopicName}, nil
	default:
		return decodeOther(data, env.EventMeta)
	}
}

// decodeOther captures the fields this module does not model.
func decodeOther(data []byte, meta EventMeta) (StatusEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode status event: %w", err)
	}
	delete(raw, "event_type")
	delete(raw, "timestamp")
	delete(raw, "sensor_id")
	delete(raw, "sensor_name")
	return &SensorOther{Meta: meta, Extra: raw}, nil
}
