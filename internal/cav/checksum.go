package cav

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// CanonicalPayload serializes a backup payload deterministically: bucket and
// object keys in lexical order, no insignificant whitespace, numbers as
// written and strings without HTML escaping. Two payloads with the same
// buckets and contents always serialize to the same bytes, however their
// strings were escaped when stored.
func CanonicalPayload(data map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range sortedKeys(data) {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("encoding bucket name %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := canonicalValue(data[name])
		if err != nil {
			return nil, fmt.Errorf("canonicalizing bucket %q: %w", name, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func canonicalValue(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after value")
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(out.Bytes(), "\n"), nil
}

// Checksum returns the SHA-256 hex digest of the canonical payload along with
// the payload's serialized size in bytes.
func Checksum(data map[string]json.RawMessage) (string, int, error) {
	payload, err := CanonicalPayload(data)
	if err != nil {
		return "", 0, err
	}
	return ChecksumBytes(payload), len(payload), nil
}

// ChecksumBytes returns the SHA-256 hex digest of b.
func ChecksumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
