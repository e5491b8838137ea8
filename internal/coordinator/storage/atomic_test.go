package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	want := sample{Name: "probe-1", Count: 3}
	if err := WriteJSONAtomic(path, want); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}

	var got sample
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Errorf("ReadJSON() = %+v, want %+v", got, want)
	}
}

func TestWriteJSONAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	if err := WriteJSONAtomic(path, sample{Name: "x"}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected the temp file to be renamed away, stat err = %v", err)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var got sample
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &got)
	if !os.IsNotExist(err) {
		t.Errorf("expected os.IsNotExist for a missing file, got %v", err)
	}
}

func TestStatFileReflectsUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := WriteJSONAtomic(path, sample{Name: "a"}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	first, err := StatFile(path)
	if err != nil {
		t.Fatalf("StatFile: %v", err)
	}

	if err := WriteJSONAtomic(path, sample{Name: "a-longer-value-to-change-size"}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	second, err := StatFile(path)
	if err != nil {
		t.Fatalf("StatFile: %v", err)
	}
	if first == second {
		t.Errorf("expected Stat to change after rewriting with a different size")
	}
}
