package eventlog

import (
	"encoding/json"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// encodePayload is shared by every backend: events are stored as their
// JSON encoding, keyed by EventType/EventVersion in the envelope so a
// reader can pick the right Go type to decode into.
func encodePayload(e interface{ EventType() string }) ([]byte, error) {
	return json.Marshal(e)
}

// encodeMetadata and decodeMetadata let the SQL backends store Metadata as
// a single JSON column rather than normalizing correlation/causation into
// their own columns, matching the payload's own envelope-level encoding.
func encodeMetadata(m eventsourcing.Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMetadata(b []byte) (eventsourcing.Metadata, error) {
	var m eventsourcing.Metadata
	if len(b) == 0 {
		return m, nil
	}
	err := json.Unmarshal(b, &m)
	return m, err
}
