// ABOUTME: VBAN wire format package
// ABOUTME: Header parsing, sample rate table and PCM payload codec
// Package vban implements the VBAN (VB-Audio Network) wire format.
//
// A VBAN datagram is a 28-byte little-endian header followed by up to 1436
// bytes of interleaved integer PCM. This package provides:
//   - Header: parse and build the packet header
//   - DecodeInterleaved / EncodeInterleaved: convert between wire PCM and
//     per-channel float32 buffers
//   - the fixed 21-entry sample rate table
//
// Only the audio sub-protocol with raw PCM at 16 or 32 bit signed integer
// resolution is supported.
package vban
