// ABOUTME: Audio output backends package
// ABOUTME: Malgo callback and oto pump backends driving the NodeManager
// Package output provides playback backends that drive an audio.NodeManager.
//
// Two backends are available:
//   - Malgo: miniaudio playback callback invoking the graph directly
//   - Oto: a pump goroutine paced by a blocking pipe write
package output
