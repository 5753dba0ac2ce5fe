// ABOUTME: VBAN ingress package
// ABOUTME: UDP server, timeline buffer, sample queues and the receiver façade
// Package receiver implements the ingress half of VBAN streaming.
//
// Two playback paths are available. The timeline path (Receiver,
// TimelineBuffer, TimelineReader) aligns streams on an absolute sample
// timeline derived from the packet counter and compensates for clock drift
// between sender and local audio device. The queue path (PacketRouter,
// StreamPlayer, SampleQueuePlayer) plays each stream independently from a
// lock-free queue with a spare pre-roll, for senders without a usable
// timeline.
package receiver
