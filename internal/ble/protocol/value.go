// Package protocol holds the value encoding used on the quiz player
// characteristics: UTF-8 text, served in offset-addressed chunks.
package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/chaz8081/quizlink/internal/ble"
)

// MaxValueBytes is the longest attribute value ATT allows.
const MaxValueBytes = 512

// ReadAt returns the part of value a read at offset should carry.
// An offset equal to len(value) yields an empty, non-nil slice.
func ReadAt(value []byte, offset int) ([]byte, error) {
	if offset < 0 || offset > len(value) {
		return nil, fmt.Errorf("read at %d of %d bytes: %w", offset, len(value), ble.ErrInvalidOffset)
	}
	out := make([]byte, len(value)-offset)
	copy(out, value[offset:])
	return out, nil
}

// WriteAt merges a write at offset into current, replacing everything from
// offset onward.
func WriteAt(current []byte, offset int, value []byte) ([]byte, error) {
	if offset < 0 || offset > len(current) {
		return nil, fmt.Errorf("write at %d of %d bytes: %w", offset, len(current), ble.ErrInvalidOffset)
	}
	out := make([]byte, 0, offset+len(value))
	out = append(out, current[:offset]...)
	out = append(out, value...)
	return out, nil
}

// EncodeText encodes s for a characteristic, cutting it to MaxValueBytes
// without splitting a UTF-8 character.
func EncodeText(s string) []byte {
	if len(s) <= MaxValueBytes {
		return []byte(s)
	}
	split := MaxValueBytes
	// Walk back to the start of a rune.
	for split > 0 && !utf8.RuneStart(s[split]) {
		split--
	}
	return []byte(s[:split])
}

// DecodeText decodes a characteristic value. ok is false for invalid UTF-8;
// such values are dropped by the caller.
func DecodeText(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
