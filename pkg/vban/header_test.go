// ABOUTME: Tests for VBAN header parsing and validation
// ABOUTME: Covers each wire error kind and the marshal roundtrip
package vban

import (
	"errors"
	"testing"
)

func validHeader() Header {
	return Header{
		SampleRateIndex: 3, // 48000
		FramesPerPacket: 256,
		Channels:        2,
		BitDepth:        16,
		StreamName:      "Stream1",
		FrameCounter:    42,
	}
}

func TestParseHeaderRoundtrip(t *testing.T) {
	want := validHeader()
	data := want.AppendTo(nil)

	if len(data) != HeaderSize {
		t.Fatalf("marshalled header is %d bytes, want %d", len(data), HeaderSize)
	}

	got, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, want)
	}
	if got.SampleRate() != 48000 {
		t.Errorf("SampleRate() = %d, want 48000", got.SampleRate())
	}
	if got.PayloadSize() != 256*2*2 {
		t.Errorf("PayloadSize() = %d, want %d", got.PayloadSize(), 256*2*2)
	}
	if got.Time() != 42*256 {
		t.Errorf("Time() = %d, want %d", got.Time(), 42*256)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(data []byte) []byte
		wantErr error
	}{
		{
			name:    "too short",
			mutate:  func(data []byte) []byte { return data[:HeaderSize-1] },
			wantErr: ErrTooShort,
		},
		{
			name: "bad magic",
			mutate: func(data []byte) []byte {
				data[0] = 'X'
				return data
			},
			wantErr: ErrBadMagic,
		},
		{
			name: "serial protocol",
			mutate: func(data []byte) []byte {
				data[4] |= 0x20
				return data
			},
			wantErr: ErrUnsupportedProtocol,
		},
		{
			name: "non-pcm codec",
			mutate: func(data []byte) []byte {
				data[7] |= 0x10
				return data
			},
			wantErr: ErrUnsupportedCodec,
		},
		{
			name: "8 bit resolution",
			mutate: func(data []byte) []byte {
				data[7] = 0x00
				return data
			},
			wantErr: ErrUnsupportedBitDepth,
		},
		{
			name: "float resolution",
			mutate: func(data []byte) []byte {
				data[7] = 0x05
				return data
			},
			wantErr: ErrUnsupportedBitDepth,
		},
		{
			name: "sample rate index out of table",
			mutate: func(data []byte) []byte {
				data[4] = 21
				return data
			},
			wantErr: ErrUnsupportedSampleRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(validHeader().AppendTo(nil))
			_, err := ParseHeader(data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseHeader error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHeaderStreamNamePadding(t *testing.T) {
	h := validHeader()
	h.StreamName = "abcdefghijklmnop" // exactly 16 bytes, no terminator
	data := h.AppendTo(nil)

	got, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if got.StreamName != "abcdefghijklmnop" {
		t.Errorf("StreamName = %q, want %q", got.StreamName, "abcdefghijklmnop")
	}
}

func TestSampleRateTable(t *testing.T) {
	if _, ok := SampleRateFromIndex(21); ok {
		t.Error("index 21 should be invalid")
	}

	rate, ok := SampleRateFromIndex(16)
	if !ok || rate != 44100 {
		t.Errorf("index 16 = %d, want 44100", rate)
	}

	index, ok := SampleRateIndex(48000)
	if !ok || index != 3 {
		t.Errorf("SampleRateIndex(48000) = %d, want 3", index)
	}

	if _, ok := SampleRateIndex(44101); ok {
		t.Error("44101 should not be representable")
	}
}
