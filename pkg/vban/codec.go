// ABOUTME: PCM sample conversion between VBAN wire payloads and float buffers
// ABOUTME: Deinterleaves little-endian int16/int32 samples to float32 and back
package vban

import "math"

// The VBAN sample rate table. The wire index is the position in this list.
var sampleRates = [...]int{
	6000, 12000, 24000, 48000, 96000, 192000, 384000,
	8000, 16000, 32000, 64000, 128000, 256000, 512000,
	11025, 22050, 44100, 88200, 176400, 352800, 705600,
}

// SampleRateFromIndex returns the sample rate for a wire index.
func SampleRateFromIndex(index uint8) (int, bool) {
	if int(index) >= len(sampleRates) {
		return 0, false
	}
	return sampleRates[index], true
}

// SampleRateIndex returns the wire index for a sample rate.
func SampleRateIndex(rate int) (uint8, bool) {
	for i, sr := range sampleRates {
		if sr == rate {
			return uint8(i), true
		}
	}
	return 0, false
}

// DecodeInterleaved converts the interleaved integer PCM payload described by
// header into per-channel float32 buffers. out must hold at least
// header.Channels buffers of at least header.FramesPerPacket samples each.
// Integer samples are divided by the positive maximum of their width, so the
// most negative sample decodes slightly below -1.0. This matches the on-wire
// quantization convention and must not be changed.
func DecodeInterleaved(payload []byte, header Header, out [][]float32) error {
	if len(payload) < header.PayloadSize() {
		return ErrPayloadSize
	}

	frames := header.FramesPerPacket
	channels := header.Channels

	switch header.BitDepth {
	case 16:
		for i := 0; i < frames; i++ {
			base := i * channels * 2
			for c := 0; c < channels; c++ {
				pos := base + c*2
				v := int16(uint16(payload[pos]) | uint16(payload[pos+1])<<8)
				out[c][i] = float32(v) / float32(math.MaxInt16)
			}
		}
	case 32:
		for i := 0; i < frames; i++ {
			base := i * channels * 4
			for c := 0; c < channels; c++ {
				pos := base + c*4
				v := int32(uint32(payload[pos]) | uint32(payload[pos+1])<<8 |
					uint32(payload[pos+2])<<16 | uint32(payload[pos+3])<<24)
				out[c][i] = float32(float64(v) / float64(math.MaxInt32))
			}
		}
	default:
		return ErrUnsupportedBitDepth
	}

	return nil
}

// EncodeInterleaved quantizes per-channel float32 buffers into the interleaved
// integer PCM layout described by header. payload must hold
// header.PayloadSize() bytes. Values are clamped to [-1.0, 1.0] before
// quantization, mirroring the decoder's intMax convention.
func EncodeInterleaved(in [][]float32, header Header, payload []byte) error {
	if len(payload) < header.PayloadSize() {
		return ErrPayloadSize
	}

	frames := header.FramesPerPacket
	channels := header.Channels

	switch header.BitDepth {
	case 16:
		for i := 0; i < frames; i++ {
			base := i * channels * 2
			for c := 0; c < channels; c++ {
				v := int16(clamp(in[c][i]) * float32(math.MaxInt16))
				pos := base + c*2
				payload[pos] = byte(v)
				payload[pos+1] = byte(uint16(v) >> 8)
			}
		}
	case 32:
		for i := 0; i < frames; i++ {
			base := i * channels * 4
			for c := 0; c < channels; c++ {
				v := int32(float64(clamp(in[c][i])) * float64(math.MaxInt32))
				pos := base + c*4
				u := uint32(v)
				payload[pos] = byte(u)
				payload[pos+1] = byte(u >> 8)
				payload[pos+2] = byte(u >> 16)
				payload[pos+3] = byte(u >> 24)
			}
		}
	default:
		return ErrUnsupportedBitDepth
	}

	return nil
}

func clamp(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
