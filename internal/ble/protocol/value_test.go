package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/chaz8081/quizlink/internal/ble"
)

func TestReadAt(t *testing.T) {
	value := []byte("player-123")

	tests := []struct {
		name    string
		offset  int
		want    []byte
		wantErr bool
	}{
		{name: "whole value", offset: 0, want: []byte("player-123")},
		{name: "tail", offset: 7, want: []byte("123")},
		{name: "offset at length", offset: len(value), want: []byte{}},
		{name: "offset past length", offset: len(value) + 1, wantErr: true},
		{name: "negative offset", offset: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAt(value, tt.offset)
			if tt.wantErr {
				if !errors.Is(err, ble.ErrInvalidOffset) {
					t.Fatalf("ReadAt() error = %v, want ErrInvalidOffset", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAt() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadAtEmptyValue(t *testing.T) {
	got, err := ReadAt(nil, 0)
	if err != nil {
		t.Fatalf("ReadAt(nil, 0) error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAt(nil, 0) = %q, want empty", got)
	}
	if _, err := ReadAt(nil, 1); !errors.Is(err, ble.ErrInvalidOffset) {
		t.Errorf("ReadAt(nil, 1) error = %v, want ErrInvalidOffset", err)
	}
}

func TestReadAtCopies(t *testing.T) {
	value := []byte("abc")
	got, _ := ReadAt(value, 0)
	got[0] = 'z'
	if value[0] != 'a' {
		t.Error("ReadAt() result aliases the stored value")
	}
}

func TestWriteAt(t *testing.T) {
	got, err := WriteAt([]byte("hello"), 2, []byte("y!"))
	if err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if string(got) != "hey!" {
		t.Errorf("WriteAt() = %q, want %q", got, "hey!")
	}

	got, err = WriteAt([]byte("A"), 1, []byte("B"))
	if err != nil {
		t.Fatalf("WriteAt() append error = %v", err)
	}
	if string(got) != "AB" {
		t.Errorf("WriteAt() append = %q, want %q", got, "AB")
	}

	if _, err := WriteAt([]byte("A"), 3, []byte("B")); !errors.Is(err, ble.ErrInvalidOffset) {
		t.Errorf("WriteAt() past end error = %v, want ErrInvalidOffset", err)
	}
}

func TestEncodeTextShort(t *testing.T) {
	if got := EncodeText("B"); string(got) != "B" {
		t.Errorf("EncodeText(%q) = %q", "B", got)
	}
}

func TestEncodeTextNeverSplitsMidChar(t *testing.T) {
	// 4-byte runes put a boundary away from MaxValueBytes-1.
	text := strings.Repeat("a", MaxValueBytes-1) + "\U0001F600"
	got := EncodeText(text)
	if len(got) > MaxValueBytes {
		t.Fatalf("len = %d, exceeds %d", len(got), MaxValueBytes)
	}
	if !utf8.Valid(got) {
		t.Error("EncodeText() produced invalid UTF-8")
	}
	if len(got) != MaxValueBytes-1 {
		t.Errorf("len = %d, want %d", len(got), MaxValueBytes-1)
	}
}

func TestDecodeText(t *testing.T) {
	if s, ok := DecodeText([]byte("C")); !ok || s != "C" {
		t.Errorf("DecodeText(C) = %q, %v", s, ok)
	}
	if s, ok := DecodeText(nil); !ok || s != "" {
		t.Errorf("DecodeText(nil) = %q, %v, want empty ok", s, ok)
	}
	if _, ok := DecodeText([]byte{0xff, 0xfe}); ok {
		t.Error("DecodeText() accepted invalid UTF-8")
	}
}
