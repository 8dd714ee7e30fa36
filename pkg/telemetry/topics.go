package telemetry

import (
	"fmt"
	"strings"
)

const (
	// ControlTopicID is the single shared topic carrying sensor lifecycle and
	// status events for the whole deployment.
	ControlTopicID = "telemetry_status_events"

	// ControlTopicRetentionDays is the retention applied to the control topic
	// when a publisher or subscriber bootstraps it.
	ControlTopicRetentionDays = 5

	// DefaultTopicPrefix namespaces data topics created by this module.
	DefaultTopicPrefix = "telemetry"
)

// DataTopicID derives the broker topic name for one measurement process:
// <prefix>__<sensor_name>__<format>__<process_token>. The derivation is
// deterministic, so two publishers configured identically name the same topic
// and the process token is what keeps concurrent measurement runs apart.
func DataTopicID(prefix, sensorName string, format SampleFormat, processToken string) string {
	return fmt.Sprintf("%s__%s__%s__%s",
		SanitizeTopicPart(prefix), SanitizeTopicPart(sensorName), format, SanitizeTopicPart(processToken))
}

// TopicParts is the decomposition of a data-topic ID produced by DataTopicID.
// SensorName is the sanitized form, not the original display name.
type TopicParts struct {
	Prefix       string
	SensorName   string
	Format       SampleFormat
	ProcessToken string
}

// ParseDataTopicID splits a data-topic ID back into its four segments. The
// sanitizer never emits consecutive underscores inside a segment, so the
// "__" separator is unambiguous.
func ParseDataTopicID(topicID string) (TopicParts, error) {
	segments := strings.Split(topicID, "__")
	if len(segments) != 4 {
		return TopicParts{}, fmt.Errorf("topic %q does not have 4 segments", topicID)
	}
	format, err := ParseSampleFormat(segments[2])
	if err != nil {
		return TopicParts{}, fmt.Errorf("topic %q: %w", topicID, err)
	}
	return TopicParts{
		Prefix:       segments[0],
		SensorName:   segments[1],
		Format:       format,
		ProcessToken: segments[3],
	}, nil
}

// SanitizeTopicPart maps arbitrary sensor names onto the character set Pub/Sub
// permits in resource IDs. Deterministic by construction.
func SanitizeTopicPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '~' || r == '+' || r == '%':
			return r
		default:
			return '-'
		}
	}, s)
}
