// ABOUTME: VBAN egress package
// ABOUTME: Sender node and UDP client for outgoing streams
// Package sender implements the egress half of VBAN streaming: a graph node
// that frames audio-callback output into VBAN datagrams and a UDP client
// that transmits them without blocking the audio thread.
package sender
