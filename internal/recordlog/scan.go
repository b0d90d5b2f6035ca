// Sequential scan over the log with optional field projection and an
// equality predicate, generalized from the teacher's all.go/scan.go line
// scanning style to free-form JSON objects (folio's records have a fixed
// 3-type shape scannable by byte offset; ours are arbitrary documents, so
// filtering happens after a full JSON decode rather than on raw bytes).
package recordlog

import (
	"fmt"
	"iter"

	json "github.com/goccy/go-json"
)

// Predicate matches a single top-level field against a literal value.
type Predicate struct {
	Field string
	Value any
}

// ScanOptions configures Scan. A nil/empty Fields slice means "no
// projection, return the full document."
type ScanOptions struct {
	Fields    []string
	Predicate *Predicate
}

func (o ScanOptions) matches(doc map[string]any) bool {
	if o.Predicate == nil {
		return true
	}
	v, ok := doc[o.Predicate.Field]
	if !ok {
		return false
	}
	return v == o.Predicate.Value
}

func (o ScanOptions) project(doc map[string]any) map[string]any {
	if len(o.Fields) == 0 {
		return doc
	}
	out := make(map[string]any, len(o.Fields))
	for _, f := range o.Fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Scan yields every live record's decoded JSON object (after projection and
// predicate filtering), in log-append order. isLive reports whether the
// record at the given offset is still reachable via the index (so a record
// superseded by a later overwrite is skipped even though its bytes remain
// in the log, per spec.md invariant 3).
func Scan(l *Log, opts ScanOptions, isLive func(offset uint64, id string) bool) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		err := l.ForEachLine(func(offset uint64, data []byte) error {
			if len(data) == 0 {
				return nil
			}
			var doc map[string]any
			if uerr := json.Unmarshal(data, &doc); uerr != nil {
				if !yield(nil, fmt.Errorf("recordlog: scan: malformed record at offset %d: %w", offset, uerr)) {
					return errStopScan
				}
				return nil
			}
			idRaw, _ := doc["_id"].(string)
			if !isLive(offset, idRaw) {
				return nil
			}
			if !opts.matches(doc) {
				return nil
			}
			if !yield(opts.project(doc), nil) {
				return errStopScan
			}
			return nil
		})
		if err != nil && err != errStopScan {
			yield(nil, err)
		}
	}
}

var errStopScan = fmt.Errorf("recordlog: scan stopped")
