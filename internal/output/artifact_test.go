package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	if err := WriteFile(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !bytes.Equal(data, []byte(`{"ok":true}`)) {
		t.Errorf("artifact content = %q", data)
	}

	// The sibling lock file is documented to stay behind.
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("expected lock file next to artifact: %v", err)
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.svg")

	if err := WriteFile(path, []byte("first")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("artifact content = %q, want %q", data, "second")
	}
}
