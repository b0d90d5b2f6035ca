// Document encode/decode and identifier validation, generalized from the
// teacher's record.go (which parses a fixed 3-type record format readable
// at known byte offsets) to free-form JSON objects whose only
// engine-mandated field is "_id".
package zds

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// validateID checks an identifier against spec.md §3: non-empty, drawn
// from [A-Za-z0-9._-], at most 255 bytes.
func validateID(id string) error {
	if !nameOK(id, MaxIDLen) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// encodeDocument marshals doc to a single JSON line, injecting or
// overwriting "_id" with the authoritative key (SPEC_FULL.md §3,
// resolving Open Question 1: the put key always wins over a conflicting
// _id already present in the payload).
func encodeDocument(id string, doc map[string]any) ([]byte, error) {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("zds: encode document %q: %w", id, err)
	}
	return data, nil
}

// decodeDocument parses a single log line into a JSON object.
func decodeDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("zds: decode document: %w", err)
	}
	return doc, nil
}

// extractID pulls the "_id" string field out of a raw log line without a
// full decode failure aborting the caller — used by index rebuild, where a
// line that can't yield an id is simply skipped (spec.md §4.B: "Missing or
// unreadable index files always permit recovery through rebuild").
func extractID(data []byte) (string, bool) {
	doc, err := decodeDocument(data)
	if err != nil {
		return "", false
	}
	id, ok := doc["_id"].(string)
	return id, ok && id != ""
}
