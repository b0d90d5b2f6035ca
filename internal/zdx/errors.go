package zdx

import "errors"

// ErrCorrupt is returned when an index.bin file fails its magic, version,
// or structural checks. Callers at the collection layer map this to
// zds.ErrCorruptIndex.
var ErrCorrupt = errors.New("zdx: corrupt index file")
