// Package obslog is the shared structured-logging helper used across
// this module, following the teacher's own stdlib-log-plus-JSON-envelope
// idiom rather than introducing a third-party structured logger.
package obslog

import (
	"encoding/json"
	"log"
	"time"
)

// Event logs one structured line: the supplied fields plus a common
// envelope of timestamp/level/component/event_type, JSON-encoded and
// written through the standard logger.
func Event(component, eventType string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any, 4)
	}
	fields["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	fields["level"] = "info"
	fields["component"] = component
	fields["event_type"] = eventType

	data, err := json.Marshal(fields)
	if err != nil {
		log.Printf("[%s] failed to marshal log event %s: %v", component, eventType, err)
		return
	}
	log.Println(string(data))
}
