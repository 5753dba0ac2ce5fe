// ABOUTME: Audio graph engine package
// ABOUTME: NodeManager, process/output node interfaces and the DirtyFlag utility
// Package audio provides the callback-driven audio graph that the VBAN
// components plug into.
//
// A NodeManager is driven once per period by an output backend (see
// audio/output). Root processes run first, then output nodes produce
// per-channel buffers that are mixed into the device channels. Everything on
// the callback path is lock-free and allocation-free.
package audio
