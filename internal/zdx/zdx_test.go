// Core index tests: Put/Get/Delete/Contains through the bloom filter,
// Save/Load round-tripping, and corrupt-file detection. Together these
// are the correctness baseline every collection store's Get depends on.
package zdx

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPutThenGet(t *testing.T) {
	idx := New()
	idx.Put("doc-1", 42, 17)

	e, ok := idx.Get("doc-1")
	if !ok {
		t.Fatal("expected doc-1 present")
	}
	if e.Offset != 42 || e.Length != 17 {
		t.Errorf("entry = %+v, want {42 17}", e)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	idx := New()
	if _, ok := idx.Get("nope"); ok {
		t.Error("expected missing id to report false")
	}
}

// TestDeleteLeavesBloomPositive verifies that Delete only removes the map
// entry; the bloom filter (which can't support removal) is expected to
// still report a stale positive, and Get must still resolve that to "not
// found" via the map check behind it.
func TestDeleteLeavesBloomPositive(t *testing.T) {
	idx := New()
	idx.Put("doc-1", 0, 10)
	idx.Delete("doc-1")

	if !idx.bloom.Contains("doc-1") {
		t.Error("bloom filter should still report doc-1 after Delete")
	}
	if idx.Contains("doc-1") {
		t.Error("Contains should be false after Delete")
	}
	if _, ok := idx.Get("doc-1"); ok {
		t.Error("Get should be false after Delete")
	}
}

func TestPutOverwritesExistingEntry(t *testing.T) {
	idx := New()
	idx.Put("doc-1", 0, 10)
	idx.Put("doc-1", 100, 20)

	e, ok := idx.Get("doc-1")
	if !ok || e.Offset != 100 || e.Length != 20 {
		t.Errorf("entry = %+v, ok=%v, want {100 20} true", e, ok)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Put("zebra", 50, 5)
	idx.Put("apple", 0, 10)
	idx.Put("mango", 20, 8)

	path := filepath.Join(t.TempDir(), "index.bin")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", loaded.Len())
	}
	for _, id := range []string{"zebra", "apple", "mango"} {
		want, _ := idx.Get(id)
		got, ok := loaded.Get(id)
		if !ok || got != want {
			t.Errorf("entry for %q = %+v, want %+v", id, got, want)
		}
	}
}

// TestSaveOrdersByOffset checks the documented wire-format guarantee that
// entries are emitted sorted ascending by offset, independent of insert
// order, so a sequential reader of index.bin observes log-append order.
func TestSaveOrdersByOffset(t *testing.T) {
	idx := New()
	idx.Put("third", 200, 1)
	idx.Put("first", 0, 1)
	idx.Put("second", 100, 1)

	var order []string
	idx.IterByOffset(func(id string, e Entry) bool {
		order = append(order, id)
		return true
	})

	want := []string{"first", "second", "third"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	path := filepath.Join(t.TempDir(), "index.bin")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved index: %v", err)
	}
	var saved []string
	for p := headerSize; p+2 <= len(data); {
		n := int(binary.LittleEndian.Uint16(data[p : p+2]))
		saved = append(saved, string(data[p+2:p+2+n]))
		p += 2 + n + 12
	}
	if len(saved) != len(want) {
		t.Fatalf("saved order = %v, want %v", saved, want)
	}
	for i, id := range want {
		if saved[i] != id {
			t.Fatalf("saved order = %v, want %v", saved, want)
		}
	}
}

func TestLoadMissingFileReturnsOSError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil || !os.IsNotExist(err) {
		t.Fatalf("err = %v, want a not-exist OS error for missing file", err)
	}
}

func TestLoadBadMagicReturnsErrCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	if err := os.WriteFile(path, []byte("NOTZ\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestLoadTruncatedHeaderReturnsErrCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	if err := os.WriteFile(path, []byte("ZDSI"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

// fakeLocator is a minimal LineLocator for Rebuild tests, independent of
// the recordlog package (which would create an import cycle).
type fakeLocator struct {
	lines []struct {
		offset uint64
		data   []byte
	}
}

func (f *fakeLocator) ForEachLine(fn func(offset uint64, data []byte) error) error {
	for _, l := range f.lines {
		if err := fn(l.offset, l.data); err != nil {
			return err
		}
	}
	return nil
}

func TestRebuildSkipsUnparseableLines(t *testing.T) {
	src := &fakeLocator{}
	src.lines = append(src.lines,
		struct {
			offset uint64
			data   []byte
		}{0, []byte(`{"_id":"a"}`)},
		struct {
			offset uint64
			data   []byte
		}{20, []byte(`not json`)},
	)

	idx, err := Rebuild(src, func(data []byte) (string, bool) {
		if string(data) == `{"_id":"a"}` {
			return "a", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", idx.Len())
	}
	if !idx.Contains("a") {
		t.Error("expected rebuilt index to contain \"a\"")
	}
}

func TestRebuildLastOccurrenceWins(t *testing.T) {
	src := &fakeLocator{}
	src.lines = append(src.lines,
		struct {
			offset uint64
			data   []byte
		}{0, []byte("first")},
		struct {
			offset uint64
			data   []byte
		}{50, []byte("second")},
	)

	idx, err := Rebuild(src, func(data []byte) (string, bool) { return "dup", true })
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	e, ok := idx.Get("dup")
	if !ok || e.Offset != 50 {
		t.Errorf("entry = %+v, ok=%v, want offset 50", e, ok)
	}
}
