// Package canonical provides the stable serialization and content
// hashing used by receipts. Two structurally equal values always encode
// to the same bytes, which downstream hash-comparison tooling depends on.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Marshal encodes v as indented JSON with a trailing newline. Struct
// field order is fixed at compile time and map keys are sorted by
// encoding/json, so the output is byte-stable for equal inputs.
// Callers are responsible for sorting any slices whose order is not
// semantically meaningful before encoding.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the lowercase hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash file %s: %w", path, err)
	}
	return HashBytes(data), nil
}
