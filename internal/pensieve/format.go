package pensieve

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the service's ISO 8601 timestamps. Values without
// a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// FlattenOCR turns a stored OCR payload into plain text. PaddleOCR output
// is a JSON list of {"rec_txt": ...} boxes; anything else is returned
// unchanged.
func FlattenOCR(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "[") {
		return value
	}

	var boxes []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &boxes); err != nil {
		return value
	}

	parts := make([]string, 0, len(boxes))
	for _, box := range boxes {
		raw, ok := box["rec_txt"]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
