// ABOUTME: VBAN wire format header parsing and validation
// ABOUTME: Implements the 28-byte little-endian VBAN header (Spec Rev 11)
package vban

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the fixed size of a VBAN header in bytes.
	HeaderSize = 28

	// MaxDataSize is the maximum size of a VBAN datagram including the header.
	MaxDataSize = 1464

	// MaxPayloadSize is the maximum PCM payload size of a VBAN datagram.
	MaxPayloadSize = MaxDataSize - HeaderSize

	// MaxStreamNameLen is the size of the zero-padded stream name field.
	MaxStreamNameLen = 16

	// MaxFramesPerPacket is the maximum number of frames a packet can carry.
	MaxFramesPerPacket = 256

	// DefaultPort is the standard VBAN UDP port.
	DefaultPort = 13251
)

// Field masks and values for the packed format bytes.
const (
	protocolMask      = 0xE0
	sampleRateMask    = 0x1F
	codecMask         = 0xF0
	bitResolutionMask = 0x07

	ProtocolAudio = 0x00
	CodecPCM      = 0x00

	// Bit resolution values for the format_bit field.
	BitFmt16 = 0x01 // 16-bit signed integer PCM
	BitFmt32 = 0x04 // 32-bit signed integer PCM
)

var magic = [4]byte{'V', 'B', 'A', 'N'}

// Wire validation errors. Each malformed datagram maps to exactly one of
// these; all are non-fatal and result in the packet being dropped.
var (
	ErrTooShort              = errors.New("vban: packet shorter than header")
	ErrBadMagic              = errors.New("vban: invalid magic fourcc")
	ErrUnsupportedProtocol   = errors.New("vban: unsupported sub-protocol, only audio is supported")
	ErrUnsupportedCodec      = errors.New("vban: unsupported codec, only PCM is supported")
	ErrUnsupportedBitDepth   = errors.New("vban: unsupported bit resolution, only 16 and 32 bit signed integer are supported")
	ErrUnsupportedSampleRate = errors.New("vban: invalid sample rate index")
	ErrBadChannelCount       = errors.New("vban: channel count cannot be zero")
	ErrPayloadSize           = errors.New("vban: payload size does not match header")
	ErrSampleRateMismatch    = errors.New("vban: sample rate does not match the audio engine")
	ErrUnknownStream         = errors.New("vban: stream name not found")
)

// Header is the decoded form of the 28-byte VBAN packet header.
type Header struct {
	SampleRateIndex uint8  // index into the VBAN sample rate table
	FramesPerPacket int    // 1..256, stored on the wire as format_nbs = n-1
	Channels        int    // 1..256, stored on the wire as format_nbc = n-1
	BitDepth        int    // 16 or 32
	StreamName      string // up to 16 ASCII bytes
	FrameCounter    uint32 // nuFrame, first packet is 0
}

// ParseHeader validates the wire header at the start of data and decodes it.
// Semantic validation only; the caller enforces the datagram size limit.
func ParseHeader(data []byte) (Header, error) {
	var h Header

	if len(data) < HeaderSize {
		return h, ErrTooShort
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return h, ErrBadMagic
	}

	formatSR := data[4]
	formatNbs := data[5]
	formatNbc := data[6]
	formatBit := data[7]

	if formatSR&protocolMask != ProtocolAudio {
		return h, ErrUnsupportedProtocol
	}
	if formatBit&codecMask != CodecPCM {
		return h, ErrUnsupportedCodec
	}

	switch formatBit & bitResolutionMask {
	case BitFmt16:
		h.BitDepth = 16
	case BitFmt32:
		h.BitDepth = 32
	default:
		return h, ErrUnsupportedBitDepth
	}

	h.SampleRateIndex = formatSR & sampleRateMask
	if _, ok := SampleRateFromIndex(h.SampleRateIndex); !ok {
		return h, ErrUnsupportedSampleRate
	}

	h.FramesPerPacket = int(formatNbs) + 1
	h.Channels = int(formatNbc) + 1
	if h.Channels < 1 {
		return h, ErrBadChannelCount
	}

	h.StreamName = decodeStreamName(data[8:24])
	h.FrameCounter = binary.LittleEndian.Uint32(data[24:28])

	return h, nil
}

// AppendTo appends the 28-byte wire representation of the header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, magic[:]...)
	dst = append(dst, ProtocolAudio|h.SampleRateIndex&sampleRateMask)
	dst = append(dst, byte(h.FramesPerPacket-1))
	dst = append(dst, byte(h.Channels-1))

	var bit byte
	if h.BitDepth == 32 {
		bit = BitFmt32
	} else {
		bit = BitFmt16
	}
	dst = append(dst, CodecPCM|bit)

	var name [MaxStreamNameLen]byte
	copy(name[:], h.StreamName)
	dst = append(dst, name[:]...)

	var counter [4]byte
	binary.LittleEndian.PutUint32(counter[:], h.FrameCounter)
	return append(dst, counter[:]...)
}

// SampleRate returns the sample rate in Hz, or 0 if the index is invalid.
func (h Header) SampleRate() int {
	rate, _ := SampleRateFromIndex(h.SampleRateIndex)
	return rate
}

// SampleSize returns the size of one sample in bytes.
func (h Header) SampleSize() int {
	return h.BitDepth / 8
}

// PayloadSize returns the expected PCM payload size in bytes.
func (h Header) PayloadSize() int {
	return h.FramesPerPacket * h.Channels * h.SampleSize()
}

// Time returns the absolute sample time of the packet's first frame on the
// sender's timeline.
func (h Header) Time() int64 {
	return int64(h.FrameCounter) * int64(h.FramesPerPacket)
}

func decodeStreamName(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
