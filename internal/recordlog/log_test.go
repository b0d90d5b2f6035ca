// Append/read tests for the log, including the mmap-fallback path: a
// range written after the last Refresh must still be readable via ReadAt
// without requiring the caller to remap first.
package recordlog

import (
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendReturnsTailOffset(t *testing.T) {
	l := openTestLog(t)

	off1, err := l.Append([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off1 != 0 {
		t.Errorf("first append offset = %d, want 0", off1)
	}

	off2, err := l.Append([]byte(`{"b":2}`))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if off2 != int64(len(`{"a":1}`)+1) {
		t.Errorf("second append offset = %d, want %d", off2, len(`{"a":1}`)+1)
	}
}

func TestReadAtBeforeRefreshFallsBackToFile(t *testing.T) {
	l := openTestLog(t)

	data := []byte(`{"fresh":true}`)
	off, err := l.Append(data)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// No Refresh() call: the mmap (if any) does not cover this write yet,
	// so ReadAt must fall back to a direct file read.
	got, err := l.ReadAt(off, len(data))
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("ReadAt = %q, want %q", got, data)
	}
}

func TestReadAtAfterRefreshUsesMmap(t *testing.T) {
	l := openTestLog(t)

	data := []byte(`{"mapped":true}`)
	off, err := l.Append(data)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if l.mr == nil || l.mappedLen < off+int64(len(data)) {
		t.Fatalf("mmap does not cover the record after Refresh (mappedLen = %d)", l.mappedLen)
	}

	got, err := l.ReadAt(off, len(data))
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("ReadAt = %q, want %q", got, data)
	}
}

func TestForEachLineVisitsInAppendOrder(t *testing.T) {
	l := openTestLog(t)

	want := []string{`{"_id":"a"}`, `{"_id":"b"}`, `{"_id":"c"}`}
	for _, line := range want {
		if _, err := l.Append([]byte(line)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var got []string
	err := l.ForEachLine(func(offset uint64, data []byte) error {
		got = append(got, string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachLine: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadAllRawReturnsEntireLog(t *testing.T) {
	l := openTestLog(t)
	l.Append([]byte("one"))
	l.Append([]byte("two"))

	raw, err := l.ReadAllRaw()
	if err != nil {
		t.Fatalf("ReadAllRaw: %v", err)
	}
	want := "one\ntwo\n"
	if string(raw) != want {
		t.Errorf("ReadAllRaw = %q, want %q", raw, want)
	}
}

func TestSizeTracksTailAcrossAppends(t *testing.T) {
	l := openTestLog(t)
	if l.Size() != 0 {
		t.Fatalf("initial Size() = %d, want 0", l.Size())
	}
	l.Append([]byte("abc"))
	if l.Size() != 4 { // 3 bytes + newline
		t.Errorf("Size() = %d, want 4", l.Size())
	}
}

func TestReopenSeesExistingTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l1.Append([]byte(`{"_id":"x"}`))
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Size() == 0 {
		t.Error("reopened log should see prior appends")
	}
}
