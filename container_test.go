// Archive pack/unpack round-trip tests, including the overwrite guard and
// a path-traversal safety check on extraction.
package zds

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "collections", "widgets", "meta"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "collections", "widgets", "meta", "data.jsonl"), []byte(`{"_id":"w1"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "out.zip")
	if err := Pack(src, archive, PackStore); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := t.TempDir()
	destSub := filepath.Join(dest, "restored")
	if err := Unpack(archive, destSub, false); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	restored, err := os.ReadFile(filepath.Join(destSub, "collections", "widgets", "meta", "data.jsonl"))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(restored) != `{"_id":"w1"}`+"\n" {
		t.Errorf("restored = %q, want original contents", restored)
	}
}

func TestPackWithDeflateUsesKlauspostCompressor(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "file.txt"), []byte("some text to compress"), 0644); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "out.zip")
	if err := Pack(src, archive, PackDeflate); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Method != zip.Deflate {
		t.Fatalf("expected a single deflate-compressed entry, got %+v", zr.File)
	}
}

func TestUnpackRefusesNonEmptyDestinationWithoutForce(t *testing.T) {
	src := t.TempDir()
	os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644)
	archive := filepath.Join(t.TempDir(), "out.zip")
	if err := Pack(src, archive, PackStore); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	dest := t.TempDir()
	os.WriteFile(filepath.Join(dest, "preexisting.txt"), []byte("x"), 0644)

	if err := Unpack(archive, dest, false); err == nil {
		t.Fatal("expected Unpack to refuse a non-empty destination without allowOverwrite")
	}
	if err := Unpack(archive, dest, true); err != nil {
		t.Errorf("Unpack with allowOverwrite=true: %v", err)
	}
}

func TestExtractEntryRejectsPathTraversal(t *testing.T) {
	dest := t.TempDir()
	f := &zip.File{FileHeader: zip.FileHeader{Name: "../escape.txt"}}
	if err := extractEntry(f, dest); err == nil {
		t.Fatal("expected a path-traversal entry to be rejected")
	}
}
