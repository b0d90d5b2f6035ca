// Collection and root metadata documents (manifest.json, zds.json),
// generalized from the teacher's fixed-size binary Header (header.go) into
// variable-length JSON, since spec.md §6 specifies manifest.json as JSON
// with named fields rather than a packed binary layout.
package zds

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	json "github.com/goccy/go-json"
)

// StoreMode selects between the log+index ("fast") and per-document-file
// modes for a collection. Recorded in the manifest so a reopen enforces
// the mode it was created with (SPEC_FULL.md §3, resolving Open Question 3).
type StoreMode string

const (
	ModeLog     StoreMode = "log"
	ModeDocFile StoreMode = "docfile"
)

// manifest is the persisted description of one collection.
type manifest struct {
	Version        string    `json:"version"`
	Collection     string    `json:"collection"`
	Strict         bool      `json:"strict"`
	CreatedAt      time.Time `json:"created_at"`
	DocCount       int       `json:"doc_count"`
	Mode           StoreMode `json:"mode"`
	MaxRecordBytes int       `json:"max_record_bytes"`
	ShapeDigest    string    `json:"shape_digest,omitempty"` // hex blake2b-128, strict mode only
}

const manifestVersion = "1.0.0"

func newManifest(name string, strict bool, mode StoreMode, maxRecordBytes int) *manifest {
	return &manifest{
		Version:        manifestVersion,
		Collection:     name,
		Strict:         strict,
		CreatedAt:      time.Now().UTC(),
		Mode:           mode,
		MaxRecordBytes: maxRecordBytes,
	}
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("zds: manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *manifest) save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// rootMeta is the optional descriptive file at <root>/zds.json. It never
// gates behaviour; its absence is never an error.
type rootMeta struct {
	Name         string                  `json:"name"`
	CreatedAt    time.Time               `json:"created_at"`
	ModifiedAt   time.Time               `json:"modified_at"`
	Collections  map[string]collectionSummary `json:"collections"`
	Extensions   map[string]any          `json:"extensions,omitempty"`
}

type collectionSummary struct {
	DocCount int       `json:"doc_count"`
	Mode     StoreMode `json:"mode"`
}

func loadRootMeta(path string) (*rootMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rm rootMeta
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("zds: root metadata %s: %w", path, err)
	}
	return &rm, nil
}

func (rm *rootMeta) save(path string) error {
	rm.ModifiedAt = time.Now().UTC()
	data, err := json.MarshalIndent(rm, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
