package canonical

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMarshal_ByteStable(t *testing.T) {
	type doc struct {
		Name  string            `json:"name"`
		Count int               `json:"count"`
		Tags  map[string]string `json:"tags"`
	}

	a := doc{Name: "demo", Count: 3, Tags: map[string]string{"b": "2", "a": "1"}}
	b := doc{Name: "demo", Count: 3, Tags: map[string]string{"a": "1", "b": "2"}}

	dataA, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dataA, dataB) {
		t.Errorf("equal values encoded differently:\n%s\n---\n%s", dataA, dataB)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal(map[string]string{"cmd": "a < b && c > d"})
	if err != nil {
		t.Fatal(err)
	}
	escaped := "\\u003c"
	if strings.Contains(string(data), escaped) {
		t.Errorf("output HTML-escaped: %s", data)
	}
	if !strings.Contains(string(data), "a < b && c > d") {
		t.Errorf("output does not preserve raw characters: %s", data)
	}
}

func TestMarshal_TrailingNewline(t *testing.T) {
	data, err := Marshal(map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("output missing trailing newline")
	}
}

func TestHashBytes(t *testing.T) {
	// Known SHA-256 of the empty input.
	const emptyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashBytes(nil); got != emptyHash {
		t.Errorf("HashBytes(nil) = %s", got)
	}

	if HashBytes([]byte("a")) == HashBytes([]byte("b")) {
		t.Error("distinct inputs collided")
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}
	if fromFile != HashBytes([]byte("content")) {
		t.Error("HashFile() disagrees with HashBytes()")
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("HashFile() of a missing file succeeded")
	}
}
